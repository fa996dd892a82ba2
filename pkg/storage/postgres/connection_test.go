package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single URL",
			input:    "postgres://replica1:5432/planner",
			expected: []string{"postgres://replica1:5432/planner"},
		},
		{
			name:     "multiple URLs with whitespace",
			input:    "postgres://replica1:5432/planner, postgres://replica2:5432/planner ",
			expected: []string{"postgres://replica1:5432/planner", "postgres://replica2:5432/planner"},
		},
		{
			name:     "empty segments dropped",
			input:    ",postgres://replica1:5432/planner,,",
			expected: []string{"postgres://replica1:5432/planner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestReplicaFallsBackToPrimary(t *testing.T) {
	cm := &ConnectionManager{}
	// With no replicas configured, Replica returns the primary handle.
	assert.Equal(t, cm.primary, cm.Replica())
}

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentTiers(t *testing.T) {
	doc := IndexDocument{
		Title:                  "Q3 Launch Plan",
		Description:            "Long form description",
		Objectives:             "Grow adoption",
		KeyMessages:            "Ship it",
		OwnerName:              "Ada Lovelace",
		TagNames:               []string{"launch", "priority"},
		TeamMemberNames:        []string{"Grace Hopper"},
		BusinessAreaNames:      []string{"Engineering"},
		AudienceNames:          []string{"Customers"},
		ChannelNames:           []string{"Email"},
		ContentTypeNames:       []string{"Announcement"},
		StrategicPriorityNames: []string{"Expansion"},
		LocationNames:          []string{"Berlin"},
		FolderNames:            []string{"2026", "Launches"},
	}

	assert.Equal(t, "Q3 Launch Plan launch priority Ada Lovelace Grace Hopper", doc.TierA())
	assert.Equal(t, "Engineering Customers Email Announcement Expansion", doc.TierB())
	assert.Equal(t, "Long form description Grow adoption Ship it Berlin 2026 Launches", doc.TierC())
}

func TestDocumentTiersSkipEmptyFields(t *testing.T) {
	doc := IndexDocument{Title: "Bare plan"}

	assert.Equal(t, "Bare plan", doc.TierA())
	assert.Equal(t, "", doc.TierB())
	assert.Equal(t, "", doc.TierC())
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, dedupInt64([]int64{3, 1, 3, 2, 1}))
	assert.Equal(t, []string{"a", "b"}, dedupStrings([]string{"a", "b", "a"}))

	assert.Empty(t, dedupInt64(nil))
	assert.Equal(t, []string{"solo"}, dedupStrings([]string{"solo"}))
}

package search

import (
	"strings"
	"time"
)

// IndexDocument is one denormalized row of the index store: the
// entity's own text fields plus the id and name lists of everything
// reachable through its relations. Documents are written wholesale on
// each rebuild and never mutated in place.
type IndexDocument struct {
	EntityID  int64
	CompanyID int64

	Title       string
	Description string
	Objectives  string
	KeyMessages string

	OwnerID      int64
	OwnerName    string
	Confidential bool

	// Budget fields are present for plans only
	BudgetTotal *float64
	BudgetSpent *float64

	CreatedAt time.Time

	TagIDs                  []int64
	TagNames                []string
	TeamMemberIDs           []int64
	TeamMemberNames         []string
	BusinessAreaIDs         []int64
	BusinessAreaNames       []string
	LocationIDs             []int64
	LocationNames           []string
	AudienceIDs             []int64
	AudienceNames           []string
	ChannelIDs              []int64
	ChannelNames            []string
	ContentTypeIDs          []int64
	ContentTypeNames        []string
	StrategicPriorityIDs    []int64
	StrategicPriorityNames  []string
	FolderIDs               []int64
	FolderNames             []string
}

// TierA returns the highest-weight searchable text: title, tag names,
// owner name, team member names. A match here outranks an equal match
// in lower tiers.
func (d *IndexDocument) TierA() string {
	parts := make([]string, 0, 3+len(d.TagNames)+len(d.TeamMemberNames))
	parts = append(parts, d.Title)
	parts = append(parts, d.TagNames...)
	parts = append(parts, d.OwnerName)
	parts = append(parts, d.TeamMemberNames...)
	return joinNonEmpty(parts)
}

// TierB returns the mid-weight searchable text: the taxonomy facet
// names.
func (d *IndexDocument) TierB() string {
	parts := make([]string, 0,
		len(d.BusinessAreaNames)+len(d.AudienceNames)+len(d.ChannelNames)+
			len(d.ContentTypeNames)+len(d.StrategicPriorityNames))
	parts = append(parts, d.BusinessAreaNames...)
	parts = append(parts, d.AudienceNames...)
	parts = append(parts, d.ChannelNames...)
	parts = append(parts, d.ContentTypeNames...)
	parts = append(parts, d.StrategicPriorityNames...)
	return joinNonEmpty(parts)
}

// TierC returns the lowest-weight searchable text: long-form fields,
// location names and the parent-folder chain.
func (d *IndexDocument) TierC() string {
	parts := make([]string, 0, 3+len(d.LocationNames)+len(d.FolderNames))
	parts = append(parts, d.Description, d.Objectives, d.KeyMessages)
	parts = append(parts, d.LocationNames...)
	parts = append(parts, d.FolderNames...)
	return joinNonEmpty(parts)
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// dedupInt64 removes duplicate ids preserving first-seen order
func dedupInt64(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// dedupStrings removes duplicate names preserving first-seen order
func dedupStrings(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

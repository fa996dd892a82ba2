package search

import (
	"fmt"

	"github.com/lib/pq"
)

// facetBinding maps a request facet name onto an index column. Most
// facets are BIGINT[] columns matched with the array-overlap operator;
// owner is a scalar column.
type facetBinding struct {
	column string
	scalar bool
}

// facetCatalog is the set of facet names a request may filter on.
// Unknown names are rejected with ErrUnknownFacet.
var facetCatalog = map[string]facetBinding{
	"tag_ids":                {column: "tag_ids"},
	"team_member_ids":        {column: "team_member_ids"},
	"business_area_ids":      {column: "business_area_ids"},
	"location_ids":           {column: "location_ids"},
	"audience_ids":           {column: "audience_ids"},
	"channel_ids":            {column: "channel_ids"},
	"content_type_ids":       {column: "content_type_ids"},
	"strategic_priority_ids": {column: "strategic_priority_ids"},
	"folder_ids":             {column: "folder_ids"},
	"owner_ids":              {column: "owner_id", scalar: true},
}

// FacetNames returns the catalog's facet names
func FacetNames() []string {
	names := make([]string, 0, len(facetCatalog))
	for name := range facetCatalog {
		names = append(names, name)
	}
	return names
}

// FacetCond renders one facet filter as a condition on the index table
// (aliased idx). Semantics are "ANY of the supplied ids". An empty but
// present id array matches no rows; it is never treated as an absent
// filter.
func FacetCond(name string, ids []int64) (Cond, error) {
	binding, ok := facetCatalog[name]
	if !ok {
		return Cond{}, fmt.Errorf("%w: %q", ErrUnknownFacet, name)
	}

	if len(ids) == 0 {
		return FalseCond(), nil
	}

	if binding.scalar {
		return NewCond("idx."+binding.column+" = ANY(?)", pq.Array(ids)), nil
	}
	return NewCond("idx."+binding.column+" && ?", pq.Array(ids)), nil
}

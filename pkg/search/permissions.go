package search

import (
	"github.com/plannerhq/plansearch/pkg/planning"
)

// PermissionResolver computes the row-level visibility predicate that
// is intersected with every search query. The predicate is expressed
// against the authoritative entity row (aliased e), joined live at
// query time: index staleness may hide an item but can never expose a
// row the live tables forbid.
type PermissionResolver struct{}

// NewPermissionResolver creates a permission resolver
func NewPermissionResolver() *PermissionResolver {
	return &PermissionResolver{}
}

// VisibilityCond returns the predicate for one requester and entity
// type. An item is visible when the requester holds the tenant-wide
// elevated role, or the item is not confidential, or the requester is
// its owner, or the requester is on its team. Tenant equality always
// applies.
//
// An unresolvable identity denies everything: the error is
// ErrAccessDenied, never an empty predicate.
func (r *PermissionResolver) VisibilityCond(identity planning.Identity, entityType planning.EntityType) (Cond, error) {
	if !identity.Valid() {
		return Cond{}, ErrAccessDenied
	}

	tenant := NewCond("e.company_id = ?", identity.CompanyID)

	if identity.Role.Elevated() {
		return tenant, nil
	}

	prefix := entityType.JoinPrefix()
	membership := NewCond(
		"EXISTS (SELECT 1 FROM "+prefix+"_team_members tm WHERE tm."+prefix+"_id = e.id AND tm.user_id = ?)",
		identity.UserID,
	)

	return And(
		tenant,
		Or(
			NewCond("e.confidential = FALSE"),
			NewCond("e.owner_id = ?", identity.UserID),
			membership,
		),
	), nil
}

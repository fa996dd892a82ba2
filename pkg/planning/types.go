package planning

import (
	"fmt"
	"time"
)

// EntityType identifies a searchable entity kind
type EntityType string

const (
	EntityPlan          EntityType = "plan"
	EntityCommunication EntityType = "communication"
)

// AllEntityTypes returns every searchable entity kind
func AllEntityTypes() []EntityType {
	return []EntityType{EntityPlan, EntityCommunication}
}

// Valid reports whether the entity type is known
func (e EntityType) Valid() bool {
	switch e {
	case EntityPlan, EntityCommunication:
		return true
	}
	return false
}

// TableName returns the authoritative entity table for this kind
func (e EntityType) TableName() string {
	switch e {
	case EntityPlan:
		return "plans"
	case EntityCommunication:
		return "communications"
	}
	return ""
}

// JoinPrefix returns the prefix used by this kind's relation join tables
// (plan_tags, communication_tags, ...)
func (e EntityType) JoinPrefix() string {
	return string(e)
}

// IndexTable returns the search index table for this kind
func (e EntityType) IndexTable() string {
	return string(e) + "_search_index"
}

// HasBudget reports whether this kind carries budget fields
func (e EntityType) HasBudget() bool {
	return e == EntityPlan
}

// ParseEntityType parses an entity type string
func ParseEntityType(s string) (EntityType, error) {
	et := EntityType(s)
	if !et.Valid() {
		return "", fmt.Errorf("unknown entity type: %q", s)
	}
	return et, nil
}

// Role represents a user's role within their company
type Role string

const (
	// RoleOwner is the tenant-wide elevated role: it sees every item in
	// the company, confidential or not.
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Elevated reports whether the role bypasses confidentiality checks.
// Only the company owner role does.
func (r Role) Elevated() bool {
	return r == RoleOwner
}

// Identity is the requester identity resolved by the external auth
// layer before a request reaches the search subsystem. The subsystem
// trusts it as given.
type Identity struct {
	UserID    int64 `json:"user_id"`
	CompanyID int64 `json:"company_id"`
	Role      Role  `json:"role"`

	// HideBudget gates budget fields on plan results independently of
	// general visibility.
	HideBudget bool `json:"hide_budget"`
}

// Valid reports whether the identity is fully resolved. An identity
// that fails this check must be denied, never defaulted.
func (id Identity) Valid() bool {
	return id.UserID > 0 && id.CompanyID > 0 && id.Role.Valid()
}

// EntityProjection is the hydrated representation of a search hit
// returned to callers.
type EntityProjection struct {
	ID        int64      `json:"id"`
	Kind      EntityType `json:"kind"`
	CompanyID int64      `json:"company_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Objectives  string `json:"objectives,omitempty"`
	KeyMessages string `json:"key_messages,omitempty"`

	OwnerID      int64  `json:"owner_id"`
	OwnerName    string `json:"owner_name,omitempty"`
	Confidential bool   `json:"confidential"`

	// Budget fields are plan-only and nil when the requester's
	// hide_budget flag is set.
	BudgetTotal *float64 `json:"budget_total,omitempty"`
	BudgetSpent *float64 `json:"budget_spent,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Facet display strings assembled from the index snapshot.
	TagNames               string `json:"tag_names,omitempty"`
	TeamMemberNames        string `json:"team_member_names,omitempty"`
	BusinessAreaNames      string `json:"business_area_names,omitempty"`
	LocationNames          string `json:"location_names,omitempty"`
	AudienceNames          string `json:"audience_names,omitempty"`
	ChannelNames           string `json:"channel_names,omitempty"`
	ContentTypeNames       string `json:"content_type_names,omitempty"`
	StrategicPriorityNames string `json:"strategic_priority_names,omitempty"`
	FolderNames            string `json:"folder_names,omitempty"`

	// Rank is the text-relevance score for the query that produced this
	// hit; zero when the search had no free-text component.
	Rank float64 `json:"rank"`
}

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plannerhq/plansearch/pkg/planning"
)

func identity(role planning.Role) planning.Identity {
	return planning.Identity{UserID: 11, CompanyID: 7, Role: role}
}

func TestVisibilityCondFailsClosed(t *testing.T) {
	resolver := NewPermissionResolver()

	invalid := []planning.Identity{
		{},
		{UserID: 11, CompanyID: 7, Role: "superuser"},
		{UserID: 0, CompanyID: 7, Role: planning.RoleMember},
		{UserID: 11, CompanyID: 0, Role: planning.RoleMember},
	}

	for _, id := range invalid {
		cond, err := resolver.VisibilityCond(id, planning.EntityPlan)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.True(t, cond.Empty())
	}
}

func TestVisibilityCondElevatedRole(t *testing.T) {
	resolver := NewPermissionResolver()

	cond, err := resolver.VisibilityCond(identity(planning.RoleOwner), planning.EntityPlan)
	require.NoError(t, err)

	// The company owner sees everything in the tenant; confidentiality
	// checks drop out entirely.
	assert.Equal(t, "e.company_id = ?", cond.expr)
	assert.Equal(t, []interface{}{int64(7)}, cond.args)
}

func TestVisibilityCondMember(t *testing.T) {
	resolver := NewPermissionResolver()

	cond, err := resolver.VisibilityCond(identity(planning.RoleMember), planning.EntityPlan)
	require.NoError(t, err)

	assert.Contains(t, cond.expr, "e.company_id = ?")
	assert.Contains(t, cond.expr, "e.confidential = FALSE")
	assert.Contains(t, cond.expr, "e.owner_id = ?")
	assert.Contains(t, cond.expr, "plan_team_members tm")
	assert.Contains(t, cond.expr, "tm.plan_id = e.id")
	// company id, owner user id, membership user id
	assert.Equal(t, []interface{}{int64(7), int64(11), int64(11)}, cond.args)
}

func TestVisibilityCondUsesEntityJoinTables(t *testing.T) {
	resolver := NewPermissionResolver()

	cond, err := resolver.VisibilityCond(identity(planning.RoleViewer), planning.EntityCommunication)
	require.NoError(t, err)

	assert.Contains(t, cond.expr, "communication_team_members tm")
	assert.Contains(t, cond.expr, "tm.communication_id = e.id")
	assert.NotContains(t, cond.expr, "plan_team_members")
}

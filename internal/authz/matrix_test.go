package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDefaultsCoverEveryAction(t *testing.T) {
	defaults := PolicyDefaults()
	for _, action := range AllActions() {
		_, ok := defaults[action]
		assert.Truef(t, ok, "action %q has no defaults entry", action)
	}
	assert.Len(t, defaults, len(AllActions()))
}

func TestBuildMatrixDefaultsOnly(t *testing.T) {
	m := BuildMatrix(nil)

	assert.True(t, m.AllowsAny(ActionMeetingClose, []Role{RoleManager}))
	assert.True(t, m.AllowsAny(ActionMeetingClose, []Role{RoleCoordinator}))
	assert.False(t, m.AllowsAny(ActionMeetingClose, []Role{RoleMember}))
	assert.False(t, m.AllowsAny(ActionSeriesClose, []Role{RoleCoordinator}))

	// Actions with an empty default set deny everyone.
	for _, role := range AllRoles() {
		assert.False(t, m.AllowsAny(ActionPolicyEdit, []Role{role}))
	}
}

func TestBuildMatrixAppliesOverrides(t *testing.T) {
	overrides := []Override{
		{Role: RoleMember, Action: ActionMeetingClose, Enabled: true},
		{Role: RoleCoordinator, Action: ActionMeetingClose, Enabled: false},
	}
	m := BuildMatrix(overrides)

	assert.True(t, m.AllowsAny(ActionMeetingClose, []Role{RoleMember}))
	assert.False(t, m.AllowsAny(ActionMeetingClose, []Role{RoleCoordinator}))
	assert.True(t, m.AllowsAny(ActionMeetingClose, []Role{RoleManager}))
}

func TestBuildMatrixIsTotalRebuild(t *testing.T) {
	overrides := []Override{
		{Role: RoleMember, Action: ActionPointCreate, Enabled: true},
	}
	first := BuildMatrix(overrides)
	second := BuildMatrix(overrides)

	for _, action := range AllActions() {
		assert.Equal(t, first.Roles(action), second.Roles(action))
	}

	// A rebuild without the override must not inherit it.
	clean := BuildMatrix(nil)
	assert.False(t, clean.AllowsAny(ActionPointCreate, []Role{RoleMember}))
}

func TestBuildMatrixPanicsOnUnknownAction(t *testing.T) {
	assert.Panics(t, func() {
		BuildMatrix([]Override{{Role: RoleMember, Action: Action("nonsense"), Enabled: true}})
	})
}

func TestMatrixRolesOrdering(t *testing.T) {
	m := BuildMatrix([]Override{
		{Role: RoleReadOnly, Action: ActionMeetingEdit, Enabled: true},
	})
	roles := m.Roles(ActionMeetingEdit)
	require.NotEmpty(t, roles)

	// Roles come back in AllRoles order regardless of insertion order.
	index := make(map[Role]int, len(AllRoles()))
	for i, r := range AllRoles() {
		index[r] = i
	}
	for i := 1; i < len(roles); i++ {
		assert.Less(t, index[roles[i-1]], index[roles[i]])
	}
}

func TestCacheSeededWithDefaults(t *testing.T) {
	cache := NewCache()
	m := cache.Current()
	require.NotNil(t, m)
	assert.True(t, m.AllowsAny(ActionMeetingClose, []Role{RoleManager}))
}

func TestCacheReplacePublishesAtomically(t *testing.T) {
	cache := NewCache()
	before := cache.Current()

	cache.Replace(BuildMatrix([]Override{
		{Role: RoleMember, Action: ActionMeetingClose, Enabled: true},
	}))

	after := cache.Current()
	assert.NotSame(t, before, after)
	assert.False(t, before.AllowsAny(ActionMeetingClose, []Role{RoleMember}))
	assert.True(t, after.AllowsAny(ActionMeetingClose, []Role{RoleMember}))
}

func TestCacheReplaceRejectsNil(t *testing.T) {
	cache := NewCache()
	assert.Panics(t, func() { cache.Replace(nil) })
}

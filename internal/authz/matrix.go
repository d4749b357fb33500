package authz

import (
	"fmt"
	"sync/atomic"
)

// ErrMatrixIncomplete signals that the effective matrix is missing an entry
// for a known action. That is a defaults/override table bug, not a runtime
// condition, and must surface loudly instead of denying silently.
var ErrMatrixIncomplete = fmt.Errorf("authz: effective matrix missing an action entry")

// Override adds or removes a single role from a single action's allowed
// set. At most one override is active per (role, action) pair; a later
// write replaces the earlier one.
type Override struct {
	Role    Role   `json:"role"`
	Action  Action `json:"action"`
	Enabled bool   `json:"enabled"`
}

// Matrix is the effective action → allowed-roles table: PolicyDefaults with
// every override applied. It is immutable after construction; replacing the
// policy means building a new Matrix and publishing it through the Cache.
type Matrix struct {
	allowed map[Action]map[Role]struct{}
}

// BuildMatrix derives a fresh Matrix from PolicyDefaults and the given
// overrides. The rebuild is total: it never patches an existing matrix, so
// repeated application of the same overrides is idempotent and order of
// prior edits cannot drift the result.
func BuildMatrix(overrides []Override) *Matrix {
	defaults := PolicyDefaults()
	allowed := make(map[Action]map[Role]struct{}, len(defaults))
	for _, action := range AllActions() {
		roles, ok := defaults[action]
		if !ok {
			panic(fmt.Sprintf("authz: PolicyDefaults has no entry for action %q", action))
		}
		set := make(map[Role]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		allowed[action] = set
	}
	for _, ov := range overrides {
		set, ok := allowed[ov.Action]
		if !ok {
			panic(fmt.Sprintf("authz: override references unknown action %q", ov.Action))
		}
		if ov.Enabled {
			set[ov.Role] = struct{}{}
		} else {
			delete(set, ov.Role)
		}
	}
	return &Matrix{allowed: allowed}
}

// AllowsAny reports whether any of the given roles is in the action's
// allowed set.
func (m *Matrix) AllowsAny(action Action, roles []Role) bool {
	set, ok := m.allowed[action]
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrMatrixIncomplete, action))
	}
	for _, r := range roles {
		if _, granted := set[r]; granted {
			return true
		}
	}
	return false
}

// Roles returns the allowed roles for an action in AllRoles order.
func (m *Matrix) Roles(action Action) []Role {
	set, ok := m.allowed[action]
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrMatrixIncomplete, action))
	}
	var roles []Role
	for _, r := range AllRoles() {
		if _, granted := set[r]; granted {
			roles = append(roles, r)
		}
	}
	return roles
}

// Cache publishes the current effective matrix to concurrent readers.
// Writers build a replacement off to the side and swap the reference in one
// atomic store; readers never block and never observe a half-applied batch.
type Cache struct {
	current atomic.Pointer[Matrix]
}

// NewCache returns a Cache seeded with the defaults-only matrix so that
// permission checks are well-defined before overrides are loaded.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(BuildMatrix(nil))
	return c
}

// Current returns the latest published matrix.
func (c *Cache) Current() *Matrix {
	return c.current.Load()
}

// Replace atomically publishes a new matrix.
func (c *Cache) Replace(m *Matrix) {
	if m == nil {
		panic("authz: cannot publish nil matrix")
	}
	c.current.Store(m)
}

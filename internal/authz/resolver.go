package authz

import (
	"context"

	"github.com/quorum-hq/quorum/internal/shared"
)

// Identity is the per-request user context supplied by the auth layer. It
// is immutable for the lifetime of one request; the resolver trusts it
// as-is.
type Identity struct {
	ID           string
	Email        string
	Roles        []Role
	CompanyID    string
	ProjectIDs   []string
	ProjectRoles map[string]ProjectRole
}

// HasRole reports whether the identity holds the given global role.
func (id Identity) HasRole(role Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity holds the universal override role.
func (id Identity) IsAdmin() bool {
	return id.HasRole(RoleAdmin)
}

// MemberOf reports whether the identity belongs to the project.
func (id Identity) MemberOf(projectID string) bool {
	for _, p := range id.ProjectIDs {
		if p == projectID {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// decision is the outcome of a single policy evaluator. Abstaining falls
// through to the next evaluator; the chain denies when every evaluator
// abstains.
type decision int

const (
	abstain decision = iota
	allow
)

type evaluator func(r *Resolver, id Identity, action Action, projectID string) decision

// projectEvaluators are consulted in order: the global role grant first,
// then the project-scoped role grant. A global grant is never narrowed by
// project scope.
var projectEvaluators = []evaluator{
	globalGrant,
	projectRoleGrant,
}

func globalGrant(r *Resolver, id Identity, action Action, _ string) decision {
	if r.HasPermission(id, action) {
		return allow
	}
	return abstain
}

func projectRoleGrant(_ *Resolver, id Identity, action Action, projectID string) decision {
	if projectID == "" {
		return abstain
	}
	role, ok := id.ProjectRoles[projectID]
	if !ok {
		return abstain
	}
	if projectRoleGrantsAction(role, action) {
		return allow
	}
	return abstain
}

// Resolver answers allow/deny for any user and action against the current
// effective matrix and the fixed project grant table. All methods are pure
// reads; the only shared state is the published matrix reference.
type Resolver struct {
	cache *Cache
}

// NewResolver constructs a Resolver over the given policy cache.
func NewResolver(cache *Cache) *Resolver {
	return &Resolver{cache: cache}
}

// HasPermission reports whether any of the user's global roles is in the
// action's effective allowed set. The administrator role always passes.
func (r *Resolver) HasPermission(id Identity, action Action) bool {
	if id.IsAdmin() {
		return true
	}
	return r.cache.Current().AllowsAny(action, id.Roles)
}

// CanAccessProject reports whether the user may touch the project at all.
// An empty projectID means the action is not project-scoped.
func (r *Resolver) CanAccessProject(id Identity, projectID string) bool {
	if id.IsAdmin() {
		return true
	}
	if projectID == "" {
		return true
	}
	return id.MemberOf(projectID)
}

// HasProjectPermission combines the global grant and the project-role grant
// as two independent policies: either one allowing is enough. Project
// access is a hard precondition for both.
func (r *Resolver) HasProjectPermission(id Identity, action Action, projectID string) bool {
	if id.IsAdmin() {
		return true
	}
	if !r.CanAccessProject(id, projectID) {
		return false
	}
	for _, eval := range projectEvaluators {
		if eval(r, id, action, projectID) == allow {
			return true
		}
	}
	return false
}

// CanEditPoint decides whether the user may edit a point with the given
// assignment reference. Holders of the edit-any capability always may;
// holders of the edit-own capability may when the point is assigned to
// them. The email substring match is a fallback for legacy free-text
// references only and is intentionally loose; tagged references of any
// kind never fall back to it. See the assignment docs.
func (r *Resolver) CanEditPoint(id Identity, assignedTo shared.AssignmentRef, projectID string) bool {
	if !r.CanAccessProject(id, projectID) {
		return false
	}
	if r.HasPermission(id, ActionPointEditAny) {
		return true
	}
	if !r.HasProjectPermission(id, ActionPointEditOwn, projectID) {
		return false
	}
	if userID, ok := assignedTo.UserID(); ok {
		return userID == id.ID
	}
	if !assignedTo.IsLegacy() {
		return false
	}
	return assignedTo.ContainsEmail(id.Email)
}

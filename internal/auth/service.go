package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/quorum-hq/quorum/internal/authz"
	"github.com/quorum-hq/quorum/internal/shared"
)

// Service wraps authentication and identity-loading rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// LoadIdentity assembles the per-request user context from the user record
// and project memberships. Unknown stored role strings are table bugs and
// fail loudly rather than being skipped.
func (s *Service) LoadIdentity(ctx context.Context, userID string) (authz.Identity, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return authz.Identity{}, err
	}
	roles := make([]authz.Role, 0, len(user.Roles))
	for _, raw := range user.Roles {
		role, ok := authz.ParseRole(raw)
		if !ok {
			return authz.Identity{}, fmt.Errorf("auth: user %s has unknown role %q", user.ID, raw)
		}
		roles = append(roles, role)
	}
	memberships, err := s.repo.ListMemberships(ctx, user.ID)
	if err != nil {
		return authz.Identity{}, err
	}
	identity := authz.Identity{
		ID:           user.ID,
		Email:        user.Email,
		Roles:        roles,
		CompanyID:    user.CompanyID,
		ProjectIDs:   make([]string, 0, len(memberships)),
		ProjectRoles: make(map[string]authz.ProjectRole, len(memberships)),
	}
	for _, m := range memberships {
		identity.ProjectIDs = append(identity.ProjectIDs, m.ProjectID)
		if m.ProjectRole == "" {
			continue
		}
		projectRole, ok := authz.ParseProjectRole(m.ProjectRole)
		if !ok {
			return authz.Identity{}, fmt.Errorf("auth: user %s has unknown project role %q", user.ID, m.ProjectRole)
		}
		identity.ProjectRoles[m.ProjectID] = projectRole
	}
	return identity, nil
}

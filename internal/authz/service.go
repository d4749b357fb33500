package authz

import (
	"context"
	"fmt"
	"log/slog"
)

// Service owns the override store and the published policy cache. It is the
// only writer of the cache: every change to the override set goes through a
// full rebuild followed by one atomic publish.
type Service struct {
	store  OverrideStore
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store OverrideStore, cache *Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

// LoadOverrides reads the persisted overrides and publishes the effective
// matrix. Called once at process start, before the first request.
func (s *Service) LoadOverrides(ctx context.Context) error {
	overrides, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("authz: load overrides: %w", err)
	}
	s.cache.Replace(BuildMatrix(overrides))
	if s.logger != nil {
		s.logger.Info("policy matrix published", slog.Int("overrides", len(overrides)))
	}
	return nil
}

// ApplyOverrides persists a new override set and republishes the matrix.
// The matrix swap happens only after the write succeeds, so readers either
// see the old policy or the complete new one.
func (s *Service) ApplyOverrides(ctx context.Context, overrides []Override) error {
	if err := s.store.Replace(ctx, overrides); err != nil {
		return fmt.Errorf("authz: persist overrides: %w", err)
	}
	s.cache.Replace(BuildMatrix(overrides))
	if s.logger != nil {
		s.logger.Info("policy matrix replaced", slog.Int("overrides", len(overrides)))
	}
	return nil
}

// Overrides returns the persisted override set.
func (s *Service) Overrides(ctx context.Context) ([]Override, error) {
	return s.store.List(ctx)
}

// MatrixEntry is one row of the rendered matrix.
type MatrixEntry struct {
	Action Action `json:"action"`
	Roles  []Role `json:"roles"`
}

// Catalog is the read-only configuration surface consumed by admin tooling:
// the action list with labels and grouping, the role lists, the baseline
// matrix and the currently effective one.
type Catalog struct {
	Actions      []ActionInfo  `json:"actions"`
	Roles        []Role        `json:"roles"`
	ProjectRoles []ProjectRole `json:"project_roles"`
	Defaults     []MatrixEntry `json:"defaults"`
	Effective    []MatrixEntry `json:"effective"`
}

// Catalog assembles the configuration surface from the static tables and
// the current matrix.
func (s *Service) Catalog() Catalog {
	defaults := PolicyDefaults()
	current := s.cache.Current()
	entries := make([]MatrixEntry, 0, len(actionCatalog))
	effective := make([]MatrixEntry, 0, len(actionCatalog))
	for _, action := range AllActions() {
		entries = append(entries, MatrixEntry{Action: action, Roles: defaults[action]})
		effective = append(effective, MatrixEntry{Action: action, Roles: current.Roles(action)})
	}
	return Catalog{
		Actions:      ActionCatalog(),
		Roles:        AllRoles(),
		ProjectRoles: AllProjectRoles(),
		Defaults:     entries,
		Effective:    effective,
	}
}

package authz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OverrideStore persists admin-edited (role, action, enabled) tuples. The
// active set is small; readers load it whole and derive the matrix.
type OverrideStore interface {
	List(ctx context.Context) ([]Override, error)
	Replace(ctx context.Context, overrides []Override) error
}

// PGOverrideStore is the PostgreSQL-backed override store.
type PGOverrideStore struct {
	pool *pgxpool.Pool
}

// NewPGOverrideStore constructs a PGOverrideStore.
func NewPGOverrideStore(pool *pgxpool.Pool) *PGOverrideStore {
	return &PGOverrideStore{pool: pool}
}

// List returns all active overrides.
func (s *PGOverrideStore) List(ctx context.Context) ([]Override, error) {
	rows, err := s.pool.Query(ctx, `SELECT role, action, enabled FROM policy_overrides ORDER BY action, role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var rawRole, rawAction string
		var enabled bool
		if err := rows.Scan(&rawRole, &rawAction, &enabled); err != nil {
			return nil, err
		}
		role, ok := ParseRole(rawRole)
		if !ok {
			return nil, fmt.Errorf("authz: stored override has unknown role %q", rawRole)
		}
		action, ok := ParseAction(rawAction)
		if !ok {
			return nil, fmt.Errorf("authz: stored override has unknown action %q", rawAction)
		}
		overrides = append(overrides, Override{Role: role, Action: action, Enabled: enabled})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}

// Replace atomically swaps the whole override set. Last-write-wins within
// the batch: a later tuple for the same (role, action) replaces the earlier
// one via the upsert.
func (s *PGOverrideStore) Replace(ctx context.Context, overrides []Override) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM policy_overrides`); err != nil {
		return err
	}
	for _, ov := range overrides {
		_, err := tx.Exec(ctx,
			`INSERT INTO policy_overrides (role, action, enabled) VALUES ($1, $2, $3)
			 ON CONFLICT (role, action) DO UPDATE SET enabled = EXCLUDED.enabled`,
			string(ov.Role), string(ov.Action), ov.Enabled)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorum-hq/quorum/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userSelect = `SELECT id, email, password_hash, company_id, roles, is_active, created_at, updated_at FROM users`

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE email = $1`, email))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE id = $1`, id))
}

// ListMemberships returns the user's project memberships with roles.
func (r *PGRepository) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT project_id, project_role FROM project_memberships WHERE user_id = $1 ORDER BY project_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ProjectID, &m.ProjectRole); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *PGRepository) scanUser(row pgx.Row) (*User, error) {
	var u User
	var companyID *string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &companyID, &u.Roles, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if companyID != nil {
		u.CompanyID = *companyID
	}
	return &u, nil
}

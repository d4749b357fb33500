package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CompanyID    string
	Roles        []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership links a user to a project with a project-scoped role.
type Membership struct {
	ProjectID   string
	ProjectRole string
}

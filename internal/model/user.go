package model

import "time"

// Role is the staff role carried by a user token. The set is closed.
type Role string

const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleSalesperson   Role = "SALESPERSON"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleSalesperson:
		return true
	}
	return false
}

// Kind distinguishes staff tokens from the mobile client tokens.
type Kind string

const (
	KindUser   Kind = "user"
	KindClient Kind = "client"
)

// User mirrors the `users` table. It is the principal behind staff tokens.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hash of the password.
//	Role         – ADMINISTRATOR or SALESPERSON.
//	IsActive     – inactive users are rejected even with a valid token.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Client mirrors the `clients` table used by the mobile application.
// Clients authenticate with their own token kind and are not subject to the
// single-session policy.
type Client struct {
	ID           uint64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

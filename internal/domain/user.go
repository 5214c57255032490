// Package domain contains the core business entities for Pergamon.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the library circulation system.
package domain

import (
	"strings"
	"time"
)

// UserRole distinguishes the two permission levels in the system.
type UserRole string

const (
	// RoleMember is the default role for self-registered users.
	// Members can borrow, renew, return, and reserve books.
	RoleMember UserRole = "MEMBER"

	// RoleLibrarian can additionally manage the catalog, manage users,
	// and view reports.
	RoleLibrarian UserRole = "LIBRARIAN"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleMember || r == RoleLibrarian
}

// UserStatus is the lifecycle state of a user account.
// Accounts are deactivated, never destroyed, so loans and reservations
// referencing them stay resolvable.
type UserStatus string

const (
	// UserActive accounts may authenticate and perform token-gated actions.
	UserActive UserStatus = "ACTIVE"

	// UserInactive accounts are soft-deleted. They cannot authenticate or
	// start new token-gated actions, but loans already recorded against
	// them remain standing.
	UserInactive UserStatus = "INACTIVE"
)

// User represents a registered library user.
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64 `json:"id"`

	// Name is the display name. Constraints: at least 2 characters.
	Name string `json:"name"`

	// Email is the unique login email, compared case-insensitively.
	// Stored lowercased.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// Phone is the contact phone number. Constraints: at least 10 characters.
	Phone string `json:"phone"`

	// Role determines what operations the user may perform.
	Role UserRole `json:"role"`

	// Status is the account lifecycle state.
	Status UserStatus `json:"status"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the user was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new active User with the given role.
// The email is normalized to lower case.
func NewUser(name, email, passwordHash, phone string, role UserRole) *User {
	now := time.Now().UTC()
	return &User{
		Name:         name,
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Phone:        phone,
		Role:         role,
		Status:       UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail lowercases and trims an email for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsActive returns true if the account is in the active state.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsActive()
}

// IsLibrarian returns true if the user holds the librarian role.
func (u *User) IsLibrarian() bool {
	return u.Role == RoleLibrarian
}

package users

import (
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

var (
	// ErrUserNotFound is returned when no user matches the id.
	ErrUserNotFound = fmt.Errorf("user %w", httpx.ErrNotFound)
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
	// ErrUnknownRole is returned when role_id references no role.
	ErrUnknownRole = fmt.Errorf("%w: role does not exist", httpx.ErrValidation)
	// ErrSelfDeactivate is returned when a user tries to deactivate their own account.
	ErrSelfDeactivate = fmt.Errorf("%w: you cannot deactivate your own account", httpx.ErrConflict)
)

// User represents a user account for management.
type User struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	RoleID      int64      `json:"role_id"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListFilters narrows the user listing.
type ListFilters struct {
	shared.ListFilters
	RoleID *int64
}

// CreateInput is the payload of POST /api/users.
type CreateInput struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"required,email,max=190"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
	IsActive *bool  `json:"is_active"`
}

// UpdateInput is the payload of PUT /api/users/{id}. Nil fields are left unchanged.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=120"`
	Email    *string `json:"email" validate:"omitempty,email,max=190"`
	RoleID   *int64  `json:"role_id" validate:"omitempty,gt=0"`
	IsActive *bool   `json:"is_active"`
}

// PasswordInput is the payload of PUT /api/users/{id}/password.
type PasswordInput struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

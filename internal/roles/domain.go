package roles

import (
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
)

var (
	// ErrRoleNotFound is returned when no role matches the id.
	ErrRoleNotFound = fmt.Errorf("role %w", httpx.ErrNotFound)
	// ErrRoleNameTaken is returned when the role name is already used.
	ErrRoleNameTaken = fmt.Errorf("%w: role name already exists", httpx.ErrDuplicate)
	// ErrSystemRole is returned when renaming or deleting a built-in role.
	ErrSystemRole = fmt.Errorf("%w: system roles cannot be renamed or deleted", httpx.ErrConflict)
	// ErrRoleInUse is returned when deleting a role still assigned to users.
	ErrRoleInUse = fmt.Errorf("%w: role is assigned to users", httpx.ErrConflict)
	// ErrUnknownPermission is returned when assigning a permission that does not exist.
	ErrUnknownPermission = fmt.Errorf("%w: unknown permission", httpx.ErrValidation)
)

// Role represents a role for management.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	UserCount   int       `json:"user_count"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleInput is the payload of POST and PUT /api/roles.
type RoleInput struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// PermissionsInput is the payload of PUT /api/roles/{id}/permissions.
type PermissionsInput struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

package rbac

import "errors"

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleDefinition is one row of the static role to permission table.
type RoleDefinition struct {
	Name        string   `json:"name" yaml:"-"`
	Description string   `json:"description" yaml:"description"`
	System      bool     `json:"system" yaml:"system"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

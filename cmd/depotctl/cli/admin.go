package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/depotline/depot/internal/roles"
	"github.com/depotline/depot/internal/users"
)

// UserCreator creates user accounts.
type UserCreator interface {
	Create(ctx context.Context, in users.CreateInput) (users.User, error)
}

// RoleLister lists the defined roles.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]roles.Role, error)
}

// AdminOptions defines the flags of the create-user command.
type AdminOptions struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// ErrRoleNotFound is returned when the requested role does not exist.
var ErrRoleNotFound = errors.New("admin cli: role not found")

// AdminCLI bootstraps accounts without going through the HTTP API.
type AdminCLI struct {
	users UserCreator
	roles RoleLister
	out   io.Writer
}

// NewAdminCLI constructs AdminCLI.
func NewAdminCLI(users UserCreator, roles RoleLister, out io.Writer) *AdminCLI {
	return &AdminCLI{users: users, roles: roles, out: out}
}

// CreateUser creates an active account holding the named role.
func (c *AdminCLI) CreateUser(ctx context.Context, opts AdminOptions) (users.User, error) {
	role := strings.TrimSpace(opts.Role)
	if role == "" {
		role = "admin"
	}
	list, err := c.roles.ListRoles(ctx)
	if err != nil {
		return users.User{}, fmt.Errorf("admin cli: list roles: %w", err)
	}
	var roleID int64
	for _, r := range list {
		if strings.EqualFold(r.Name, role) {
			roleID = r.ID
			break
		}
	}
	if roleID == 0 {
		return users.User{}, fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	active := true
	user, err := c.users.Create(ctx, users.CreateInput{
		Name:     opts.Name,
		Email:    opts.Email,
		Password: opts.Password,
		RoleID:   roleID,
		IsActive: &active,
	})
	if err != nil {
		return users.User{}, err
	}
	fmt.Fprintf(c.out, "created user id=%d email=%s role=%s\n", user.ID, user.Email, role)
	return user, nil
}

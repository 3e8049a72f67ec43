package roles

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// PermissionCache drops cached role permissions after changes.
type PermissionCache interface {
	Invalidate(ctx context.Context, role string) error
}

// Service handles role business logic.
type Service struct {
	repo   Repository
	cache  PermissionCache
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService builds Service instance. cache and audit may be nil.
func NewService(repo Repository, cache PermissionCache, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// GetRole returns a role with its assigned permission names.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	perms, err := s.repo.Permissions(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// CreateRole inserts a new custom role.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	in = normalizeInput(in)
	if err := httpx.Validate(in); err != nil {
		return Role{}, err
	}
	role, err := s.repo.Create(ctx, Role{Name: in.Name, Description: in.Description})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes a role. System roles keep their name.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error) {
	in = normalizeInput(in)
	if err := httpx.Validate(in); err != nil {
		return Role{}, err
	}
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if role.IsSystem && role.Name != in.Name {
		return Role{}, ErrSystemRole
	}
	oldName := role.Name
	role.Name = in.Name
	role.Description = in.Description
	if err := s.repo.Update(ctx, role); err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, oldName, role.Name)
	s.record(ctx, "role.update", id, map[string]any{"name": role.Name})
	return s.GetRole(ctx, id)
}

// DeleteRole removes a custom role that no user holds.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	if role.UserCount > 0 {
		return ErrRoleInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, role.Name)
	s.record(ctx, "role.delete", id, map[string]any{"name": role.Name})
	return nil
}

// SetPermissions replaces the permissions assigned to a role.
func (s *Service) SetPermissions(ctx context.Context, id int64, in PermissionsInput) (Role, error) {
	if err := httpx.Validate(in); err != nil {
		return Role{}, err
	}
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	names := dedupe(in.Permissions)
	if err := s.repo.SetPermissions(ctx, id, names); err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, role.Name)
	s.record(ctx, "role.permissions", id, map[string]any{"permissions": names})
	return s.GetRole(ctx, id)
}

func (s *Service) invalidate(ctx context.Context, names ...string) {
	if s.cache == nil {
		return
	}
	for _, name := range names {
		if err := s.cache.Invalidate(ctx, name); err != nil {
			s.logger.Warn("invalidate role permissions", slog.String("role", name), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "role", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit role change", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeInput(in RoleInput) RoleInput {
	in.Name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(in.Name)), " ", "_")
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func dedupe(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/depotline/depot/internal/platform/cache"
	"github.com/depotline/depot/internal/shared"
)

const (
	cacheKeyPrefix  = "rbac:role:"
	defaultCacheTTL = 5 * time.Minute
)

// Service resolves effective permissions for roles.
type Service struct {
	repo   Repository
	matrix Matrix
	cache  redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. cacheClient may be nil.
func NewService(repo Repository, matrix Matrix, cacheClient redis.Cmdable, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, matrix: matrix, cache: cacheClient, ttl: defaultCacheTTL, logger: logger}
}

// Matrix returns the static role table.
func (s *Service) Matrix() Matrix {
	return s.matrix
}

// PermissionsForRole returns the effective permissions of role. Database
// assignments win; roles without any fall back to the static table.
func (s *Service) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return []string{}, nil
	}
	key := cacheKeyPrefix + role + ":perms"
	if s.cache != nil {
		var cached []string
		err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("rbac cache read failed", slog.String("role", role), slog.Any("error", err))
		}
	}

	v, err, _ := s.group.Do(role, func() (any, error) {
		perms, err := s.repo.RolePermissions(ctx, role)
		if err != nil {
			return nil, err
		}
		if len(perms) == 0 {
			perms, _ = s.matrix.Permissions(role)
		}
		perms = normalizePermissions(perms)
		if s.cache != nil {
			if err := cache.SetJSON(ctx, s.cache, key, perms, s.ttl); err != nil {
				s.logger.Warn("rbac cache write failed", slog.String("role", role), slog.Any("error", err))
			}
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	perms := v.([]string)
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}

// Invalidate drops the cached permissions of role.
func (s *Service) Invalidate(ctx context.Context, role string) error {
	if s.cache == nil {
		return nil
	}
	role = strings.ToLower(strings.TrimSpace(role))
	return s.cache.Del(ctx, cacheKeyPrefix+role+":perms").Err()
}

// RolesGranting returns every role whose effective permissions include perm.
func (s *Service) RolesGranting(ctx context.Context, perm string) ([]string, error) {
	dbRoles, err := s.repo.ListRoleNames(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make(map[string]struct{})
	for _, r := range dbRoles {
		candidates[strings.ToLower(r)] = struct{}{}
	}
	for _, r := range s.matrix.RoleNames() {
		candidates[r] = struct{}{}
	}
	var out []string
	for role := range candidates {
		perms, err := s.PermissionsForRole(ctx, role)
		if err != nil {
			return nil, err
		}
		if hasPermission(perms, perm) {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListPermissions returns all permission rows ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SyncPermissions ensures every known permission exists as a row.
func (s *Service) SyncPermissions(ctx context.Context) (int, error) {
	return s.repo.UpsertPermissions(ctx, shared.AllScopes())
}

// Allowed reports whether role grants perm.
func (s *Service) Allowed(ctx context.Context, role, perm string) (bool, error) {
	perms, err := s.PermissionsForRole(ctx, role)
	if err != nil {
		return false, err
	}
	return hasPermission(perms, perm), nil
}

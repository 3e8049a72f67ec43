package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// TokenRevoker invalidates outstanding tokens of a user.
type TokenRevoker interface {
	RevokeUser(ctx context.Context, userID int64) error
}

// Service handles user business logic.
type Service struct {
	repo     Repository
	audit    shared.Auditor
	revoker  TokenRevoker
	logger   *slog.Logger
	hashCost int
}

// NewService builds Service instance. audit and revoker may be nil.
func NewService(repo Repository, audit shared.Auditor, revoker TokenRevoker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, revoker: revoker, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns a page of users and the total count.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	return s.repo.List(ctx, filters)
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, ErrUserNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create registers a user with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := httpx.Validate(in); err != nil {
		return User{}, err
	}
	exists, err := s.repo.RoleExists(ctx, in.RoleID)
	if err != nil {
		return User{}, err
	}
	if !exists {
		return User{}, ErrUnknownRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	user, err := s.repo.Create(ctx, User{Name: in.Name, Email: in.Email, RoleID: in.RoleID, IsActive: active}, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, "user.create", user.ID, map[string]any{"email": user.Email, "role_id": user.RoleID})
	return user, nil
}

// Update applies the non-nil fields of in.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (User, error) {
	if err := httpx.Validate(in); err != nil {
		return User{}, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.RoleID != nil && *in.RoleID != user.RoleID {
		exists, err := s.repo.RoleExists(ctx, *in.RoleID)
		if err != nil {
			return User{}, err
		}
		if !exists {
			return User{}, ErrUnknownRole
		}
		user.RoleID = *in.RoleID
	}
	if in.IsActive != nil {
		if !*in.IsActive && id == shared.ActorID(ctx) {
			return User{}, ErrSelfDeactivate
		}
		user.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	if !user.IsActive {
		s.revoke(ctx, id)
	}
	s.record(ctx, "user.update", id, nil)
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes a user.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id == shared.ActorID(ctx) {
		return ErrSelfDeactivate
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	user.IsActive = false
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}
	s.revoke(ctx, id)
	s.record(ctx, "user.deactivate", id, nil)
	return nil
}

// SetPassword replaces the password hash of a user.
func (s *Service) SetPassword(ctx context.Context, id int64, in PasswordInput) error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.revoke(ctx, id)
	s.record(ctx, "user.password", id, nil)
	return nil
}

// ActiveIDsByRoles lists active users holding any of roles.
func (s *Service) ActiveIDsByRoles(ctx context.Context, roles []string) ([]int64, error) {
	return s.repo.ActiveIDsByRoles(ctx, roles)
}

func (s *Service) revoke(ctx context.Context, id int64) {
	if s.revoker == nil {
		return
	}
	if err := s.revoker.RevokeUser(ctx, id); err != nil {
		s.logger.Warn("revoke user tokens", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "user", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit user change", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// PermissionResolver resolves the effective permissions of a role.
type PermissionResolver interface {
	PermissionsForRole(ctx context.Context, role string) ([]string, error)
}

// ClientMeta describes the caller of a login or refresh.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	tokens    *TokenManager
	blacklist Blacklist
	perms     PermissionResolver
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager, blacklist Blacklist, perms PermissionResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, blacklist: blacklist, perms: perms, logger: logger, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, in LoginInput, meta ClientMeta) (Session, error) {
	if err := httpx.Validate(in); err != nil {
		return Session{}, err
	}
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	user.LastLoginAt = &now
	return s.issue(ctx, *user, meta)
}

// Refresh exchanges a refresh token for a new pair and revokes the old one.
func (s *Service) Refresh(ctx context.Context, in RefreshInput, meta ClientMeta) (Session, error) {
	if err := httpx.Validate(in); err != nil {
		return Session{}, err
	}
	claims, err := s.tokens.ParseRefresh(in.RefreshToken)
	if err != nil {
		return Session{}, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return Session{}, err
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		return Session{}, err
	}
	return s.issue(ctx, *user, meta)
}

// Logout revokes the access token of principal and, when given, its refresh token.
func (s *Service) Logout(ctx context.Context, p *shared.Principal, refreshToken string) error {
	if p == nil {
		return ErrMissingToken
	}
	if p.TokenID != "" {
		if err := s.blacklist.Revoke(ctx, p.TokenID, time.Until(p.ExpiresAt)); err != nil {
			return err
		}
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil || claims.UserID != p.UserID {
		return nil
	}
	return s.blacklist.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
}

// Me returns the profile and permissions of principal.
func (s *Service) Me(ctx context.Context, p *shared.Principal) (User, []string, error) {
	if p == nil {
		return User{}, nil, ErrMissingToken
	}
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return User{}, nil, ErrInvalidToken
		}
		return User{}, nil, err
	}
	perms := p.Permissions
	if perms == nil {
		if perms, err = s.perms.PermissionsForRole(ctx, user.Role); err != nil {
			return User{}, nil, err
		}
	}
	return *user, perms, nil
}

// PrincipalFromToken validates a bearer access token and resolves its permissions.
func (s *Service) PrincipalFromToken(ctx context.Context, raw string) (*shared.Principal, error) {
	claims, err := s.tokens.ParseAccess(raw)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	perms, err := s.perms.PermissionsForRole(ctx, claims.Role)
	if err != nil {
		return nil, err
	}
	return &shared.Principal{
		UserID:      claims.UserID,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: perms,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// RevokeUser invalidates every outstanding token of a user.
func (s *Service) RevokeUser(ctx context.Context, userID int64) error {
	return s.blacklist.RevokeUser(ctx, userID, s.tokens.refreshTTL)
}

func (s *Service) checkRevoked(ctx context.Context, claims *Claims) error {
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrTokenRevoked
	}
	if claims.IssuedAt != nil {
		revoked, err = s.blacklist.UserRevokedSince(ctx, claims.UserID, claims.IssuedAt.Time)
		if err != nil {
			return err
		}
		if revoked {
			return ErrTokenRevoked
		}
	}
	return nil
}

func (s *Service) issue(ctx context.Context, user User, meta ClientMeta) (Session, error) {
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	perms, err := s.perms.PermissionsForRole(ctx, user.Role)
	if err != nil {
		return Session{}, err
	}
	rec := SessionRecord{ID: pair.RefreshID, UserID: user.ID, ExpiresAt: pair.RefreshTokenExpiresAt, IP: meta.IP, UserAgent: meta.UserAgent}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		s.logger.Warn("record session", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return Session{TokenPair: pair, User: user, Permissions: perms}, nil
}

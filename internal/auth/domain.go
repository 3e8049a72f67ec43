package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
)

// User represents an authenticated user account.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", httpx.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", httpx.ErrUnauthorized)
	ErrExpiredToken       = fmt.Errorf("%w: token has expired", httpx.ErrUnauthorized)
	ErrInvalidTokenType   = fmt.Errorf("%w: invalid token type", httpx.ErrUnauthorized)
	ErrTokenRevoked       = fmt.Errorf("%w: token has been revoked", httpx.ErrUnauthorized)
	ErrMissingToken       = fmt.Errorf("%w: missing bearer token", httpx.ErrUnauthorized)
	errUserNotFound       = errors.New("auth: user not found")
)

// LoginInput is the payload of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshInput is the payload of POST /api/auth/refresh.
type RefreshInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Session is the response of login and refresh.
type Session struct {
	TokenPair
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}

// SessionRecord is an audit row for an issued token pair.
type SessionRecord struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

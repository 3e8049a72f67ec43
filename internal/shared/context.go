package shared

import (
	"context"
	"time"
)

// PermissionAll grants every permission.
const PermissionAll = "*"

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID      int64     `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

// Can reports whether the principal holds perm, honouring the wildcard.
func (p *Principal) Can(perm string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == PermissionAll || granted == perm {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// ActorID returns the principal user id or zero for system actions.
func ActorID(ctx context.Context) int64 {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return 0
}

package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoPrincipal indicates the request context carries no authenticated user.
	ErrNoPrincipal = errors.New("no authenticated principal")
)

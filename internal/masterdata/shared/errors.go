// Package shared holds helpers common to the master data packages.
package shared

import (
	"fmt"

	"github.com/depotline/depot/internal/platform/httpx"
)

var (
	ErrInvalidID     = fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	ErrRequiredField = fmt.Errorf("%w: field is required", httpx.ErrValidation)
)

package warehouses

import (
	"strings"

	"github.com/depotline/depot/internal/platform/httpx"
)

func (in *WarehouseInput) normalize() {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
}

func (s *Service) validate(in *WarehouseInput) error {
	in.normalize()
	if strings.ContainsAny(in.Code, " \t") {
		return &httpx.FieldErrors{Fields: map[string]string{"code": "must not contain spaces"}}
	}
	return httpx.Validate(in)
}

package products

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/depotline/depot/internal/platform/httpx"
)

func (s *Service) validate(in *ProductInput) error {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Unit = strings.ToLower(strings.TrimSpace(in.Unit))
	if in.Unit == "" {
		in.Unit = DefaultUnit
	}
	if err := httpx.Validate(in); err != nil {
		return err
	}
	fields := map[string]string{}
	if in.Price != nil && in.Price.IsNegative() {
		fields["price"] = "must be greater than or equal to 0"
	}
	if in.Cost != nil && in.Cost.IsNegative() {
		fields["cost"] = "must be greater than or equal to 0"
	}
	if len(fields) > 0 {
		return &httpx.FieldErrors{Fields: fields}
	}
	return nil
}

func money(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return d.Round(2)
}

package products

import (
	"github.com/shopspring/decimal"

	"github.com/depotline/depot/internal/shared"
)

// ProductInput is the payload of create and update.
type ProductInput struct {
	SKU          string           `json:"sku" validate:"required,max=64"`
	Name         string           `json:"name" validate:"required,max=255"`
	Description  string           `json:"description" validate:"max=2000"`
	Unit         string           `json:"unit" validate:"max=16"`
	Price        *decimal.Decimal `json:"price"`
	Cost         *decimal.Decimal `json:"cost"`
	ReorderLevel int64            `json:"reorder_level" validate:"gte=0"`
	IsActive     *bool            `json:"is_active"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	shared.ListFilters
}

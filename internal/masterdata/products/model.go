package products

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/search"
)

// Product is a stock keeping unit.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Unit         string          `json:"unit"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost"`
	ReorderLevel int64           `json:"reorder_level"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Document returns the search document of p.
func (p Product) Document() search.Document {
	return search.Document{
		EntityType: search.EntityProduct,
		EntityID:   p.ID,
		Title:      p.Name,
		Subtitle:   p.SKU,
		Body:       p.Description,
	}
}

// DefaultUnit is applied when a product is created without a unit.
const DefaultUnit = "pcs"

var (
	ErrProductNotFound = fmt.Errorf("product %w", httpx.ErrNotFound)
	ErrSKUTaken        = fmt.Errorf("%w: product sku already exists", httpx.ErrDuplicate)
	ErrProductInUse    = fmt.Errorf("%w: product is referenced by stock or dispatches", httpx.ErrConflict)
)

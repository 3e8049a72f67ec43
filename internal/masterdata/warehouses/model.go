package warehouses

import (
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/search"
)

// Warehouse is a stock-holding location identified by its code.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document returns the search document of w.
func (w Warehouse) Document() search.Document {
	return search.Document{
		EntityType: search.EntityWarehouse,
		EntityID:   w.ID,
		Title:      w.Name,
		Subtitle:   w.Code,
		Body:       w.Address,
	}
}

var (
	ErrWarehouseNotFound = fmt.Errorf("warehouse %w", httpx.ErrNotFound)
	ErrCodeTaken         = fmt.Errorf("%w: warehouse code already exists", httpx.ErrDuplicate)
	ErrWarehouseInUse    = fmt.Errorf("%w: warehouse still holds stock or dispatches", httpx.ErrConflict)
)

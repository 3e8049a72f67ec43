package dispatch

import (
	"context"
	"fmt"

	"github.com/depotline/depot/internal/masterdata/products"
	"github.com/depotline/depot/internal/masterdata/warehouses"
)

// Catalog is the master data the dispatch form reads.
type Catalog interface {
	Warehouse(ctx context.Context, id int64) (warehouses.Warehouse, error)
	ActiveWarehouses(ctx context.Context) ([]warehouses.Warehouse, error)
	Product(ctx context.Context, id int64) (products.Product, error)
}

// CatalogAdapter adapts the masterdata services to Catalog.
type CatalogAdapter struct {
	warehouses *warehouses.Service
	products   *products.Service
}

// NewCatalogAdapter creates a new catalog adapter.
func NewCatalogAdapter(w *warehouses.Service, p *products.Service) *CatalogAdapter {
	return &CatalogAdapter{warehouses: w, products: p}
}

func (a *CatalogAdapter) Warehouse(ctx context.Context, id int64) (warehouses.Warehouse, error) {
	if a.warehouses == nil {
		return warehouses.Warehouse{}, fmt.Errorf("warehouse service not initialized")
	}
	return a.warehouses.Get(ctx, id)
}

func (a *CatalogAdapter) ActiveWarehouses(ctx context.Context) ([]warehouses.Warehouse, error) {
	if a.warehouses == nil {
		return nil, fmt.Errorf("warehouse service not initialized")
	}
	return a.warehouses.ListActive(ctx)
}

func (a *CatalogAdapter) Product(ctx context.Context, id int64) (products.Product, error) {
	if a.products == nil {
		return products.Product{}, fmt.Errorf("product service not initialized")
	}
	return a.products.Get(ctx, id)
}

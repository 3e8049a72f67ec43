package warehouses

import "github.com/depotline/depot/internal/shared"

// WarehouseInput is the payload of create and update.
type WarehouseInput struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=128"`
	Address  string `json:"address" validate:"max=512"`
	IsActive *bool  `json:"is_active"`
}

// ListFilters narrows warehouse listings.
type ListFilters struct {
	shared.ListFilters
}

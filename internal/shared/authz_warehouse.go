package shared

// Warehouse, product and stock permissions.
const (
	PermWarehousesView = "warehouses.view"
	PermWarehousesEdit = "warehouses.edit"

	PermProductsView = "products.view"
	PermProductsEdit = "products.edit"

	PermInventoryView   = "inventory.view"
	PermInventoryEdit   = "inventory.edit"
	PermInventoryExport = "inventory.export"
)

// WarehouseScopes lists master data and stock permissions.
func WarehouseScopes() []string {
	return []string{
		PermWarehousesView,
		PermWarehousesEdit,
		PermProductsView,
		PermProductsEdit,
		PermInventoryView,
		PermInventoryEdit,
		PermInventoryExport,
	}
}

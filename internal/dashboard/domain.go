// Package dashboard aggregates warehouse and dispatch figures for the home screen.
package dashboard

import "time"

// Summary is the dashboard payload.
type Summary struct {
	Products       int              `json:"products"`
	Warehouses     int              `json:"warehouses"`
	UnitsOnHand    int64            `json:"units_on_hand"`
	LowStock       int              `json:"low_stock"`
	Dispatches     map[string]int   `json:"dispatches"`
	CreatedToday   int              `json:"created_today"`
	RecentDispatch []RecentDispatch `json:"recent_dispatches"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// RecentDispatch is a compact dispatch row.
type RecentDispatch struct {
	ID            int64     `json:"id"`
	Number        string    `json:"dispatch_number"`
	WarehouseCode string    `json:"warehouse_code"`
	RecipientName string    `json:"recipient_name"`
	Status        string    `json:"status"`
	TotalQuantity int64     `json:"total_quantity"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecentLimit is how many dispatches the summary lists.
const RecentLimit = 5

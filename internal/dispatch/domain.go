// Package dispatch manages outbound shipments: the dispatch form lookups,
// the stock check and the status workflow of a dispatch.
package dispatch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/depotline/depot/internal/inventory"
	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
)

// Status represents the lifecycle state of a dispatch.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusDispatched, StatusDelivered, StatusCancelled}

// IsValid checks if status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDispatched, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanShip checks if the dispatch can leave the warehouse.
func (s Status) CanShip() bool {
	return s == StatusPending
}

// CanDeliver checks if the dispatch can be marked delivered.
func (s Status) CanDeliver() bool {
	return s == StatusDispatched
}

// CanCancel checks if the dispatch can still be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusDispatched
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	switch next {
	case StatusDispatched:
		return s.CanShip()
	case StatusDelivered:
		return s.CanDeliver()
	case StatusCancelled:
		return s.CanCancel()
	}
	return false
}

// NumberPrefix starts every dispatch number.
const NumberPrefix = "DSP"

// FormatNumber renders DSP-YYYYMMDD-NNNN.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", NumberPrefix, day.Format("20060102"), seq)
}

// Dispatch is an outbound shipment from one warehouse.
type Dispatch struct {
	ID               int64           `json:"id"`
	Number           string          `json:"dispatch_number"`
	WarehouseID      int64           `json:"warehouse_id"`
	WarehouseCode    string          `json:"warehouse_code"`
	WarehouseName    string          `json:"warehouse_name"`
	LogisticsPartner string          `json:"logistics_partner"`
	TrackingNumber   string          `json:"tracking_number"`
	RecipientName    string          `json:"recipient_name"`
	RecipientPhone   string          `json:"recipient_phone"`
	RecipientAddress string          `json:"recipient_address"`
	Notes            string          `json:"notes"`
	Status           Status          `json:"status"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	TotalQuantity    int64           `json:"total_quantity"`
	TotalValue       decimal.Decimal `json:"total_value"`
	CreatedBy        int64           `json:"created_by"`
	CreatedByName    string          `json:"created_by_name,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DispatchedAt     *time.Time      `json:"dispatched_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	Lines            []Line          `json:"lines,omitempty"`
}

// Line is one product of a dispatch.
type Line struct {
	ID          int64           `json:"id"`
	DispatchID  int64           `json:"dispatch_id"`
	ProductID   int64           `json:"product_id"`
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Document returns the search document of d.
func (d Dispatch) Document() search.Document {
	return search.Document{
		EntityType: search.EntityDispatch,
		EntityID:   d.ID,
		Title:      d.Number,
		Subtitle:   fmt.Sprintf("%s · %s", d.RecipientName, d.Status),
		Body:       fmt.Sprintf("%s %s %s %s", d.LogisticsPartner, d.TrackingNumber, d.RecipientAddress, d.WarehouseCode),
	}
}

// Link is the frontend route of the dispatch.
func (d Dispatch) Link() string {
	return "/dispatch/" + strconv.FormatInt(d.ID, 10)
}

// totals recomputes line totals and the dispatch aggregates.
func (d *Dispatch) totals() {
	d.TotalQuantity = 0
	d.TotalValue = decimal.Zero
	for i := range d.Lines {
		l := &d.Lines[i]
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
		d.TotalQuantity += l.Quantity
		d.TotalValue = d.TotalValue.Add(l.LineTotal)
	}
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// LineInput is one requested product of a new dispatch. UnitPrice defaults
// to the product list price.
type LineInput struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int64            `json:"quantity" validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// CreateInput is the dispatch form submission.
type CreateInput struct {
	WarehouseID      int64       `json:"warehouse_id" validate:"required,gt=0"`
	LogisticsPartner string      `json:"logistics_partner" validate:"required,max=128"`
	TrackingNumber   string      `json:"tracking_number" validate:"max=128"`
	RecipientName    string      `json:"recipient_name" validate:"required,max=128"`
	RecipientPhone   string      `json:"recipient_phone" validate:"max=32"`
	RecipientAddress string      `json:"recipient_address" validate:"required,max=512"`
	Notes            string      `json:"notes" validate:"max=1000"`
	Items            []LineInput `json:"items" validate:"required,min=1,max=200,dive"`
}

// CheckInput asks whether a warehouse can fulfil a set of lines.
type CheckInput struct {
	WarehouseID int64            `json:"warehouse_id" validate:"required,gt=0"`
	Items       []inventory.Line `json:"items" validate:"required,min=1,max=200,dive"`
}

// CheckResult is the response of a stock check.
type CheckResult struct {
	WarehouseID  int64                    `json:"warehouse_id"`
	Items        []inventory.Availability `json:"items"`
	AllAvailable bool                     `json:"all_available"`
}

// ShipInput marks a dispatch as handed to the logistics partner.
type ShipInput struct {
	TrackingNumber string `json:"tracking_number" validate:"max=128"`
}

// CancelInput cancels a dispatch.
type CancelInput struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// ListFilter narrows the dispatch list.
type ListFilter struct {
	shared.ListFilters
	Status      Status
	WarehouseID *int64
	From        *time.Time
	To          *time.Time
}

// WarehouseOption is an entry of the dispatch form warehouse picker.
type WarehouseOption struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ProductOption is a search-as-you-type result of the dispatch form.
type ProductOption struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	Available int64           `json:"available"`
}

// ProductQuery is the input of the product lookup.
type ProductQuery struct {
	Text        string
	WarehouseID int64
	Limit       int
}

// MinQueryLength is the shortest product lookup that hits the database.
const MinQueryLength = 2

// StatusChange is persisted by a workflow transition.
type StatusChange struct {
	From           Status
	To             Status
	TrackingNumber *string
	Reason         string
	At             time.Time
}

var (
	ErrDispatchNotFound  = fmt.Errorf("dispatch %w", httpx.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("%w: dispatch status does not allow this action", httpx.ErrConflict)
	ErrWarehouseInactive = fmt.Errorf("%w: warehouse is inactive", httpx.ErrValidation)
	ErrNumberTaken       = fmt.Errorf("%w: dispatch number already exists", httpx.ErrDuplicate)
	errReplayed          = fmt.Errorf("%w: dispatch request already processed", httpx.ErrConflict)
)

// ShortageError rejects a dispatch whose lines cannot all be fulfilled.
// Lines holds the result of every requested product, short or not.
type ShortageError struct {
	WarehouseID int64
	Lines       []inventory.Availability
}

func (e *ShortageError) Error() string {
	short := 0
	for _, l := range e.Lines {
		if !l.Sufficient {
			short++
		}
	}
	return fmt.Sprintf("insufficient stock for %d of %d products", short, len(e.Lines))
}

func (e *ShortageError) Unwrap() error { return inventory.ErrInsufficientStock }

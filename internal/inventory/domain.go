package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementIn represents an inbound receipt.
	MovementIn MovementType = "IN"
	// MovementOut represents stock issued to a dispatch.
	MovementOut MovementType = "OUT"
	// MovementTransfer is used for both legs of a warehouse transfer.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjust indicates manual adjustments.
	MovementAdjust MovementType = "ADJUST"
	// MovementReturn puts stock of a cancelled dispatch back.
	MovementReturn MovementType = "RETURN"
)

// Balance summarises stock in a warehouse per product.
type Balance struct {
	WarehouseID int64
	ProductID   int64
	Quantity    int64
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// Movement is one row of the inventory_movements ledger.
type Movement struct {
	ID          int64
	Code        string
	Type        MovementType
	WarehouseID int64
	ProductID   int64
	QtyIn       int64
	QtyOut      int64
	BalanceQty  int64
	UnitCost    decimal.Decimal
	AvgCost     decimal.Decimal
	RefModule   string
	RefID       string
	Note        string
	CreatedBy   int64
	PostedAt    time.Time
}

// StockCardEntry describes one line of a stock card.
type StockCardEntry struct {
	Code       string          `json:"code"`
	Type       MovementType    `json:"type"`
	PostedAt   time.Time       `json:"posted_at"`
	QtyIn      int64           `json:"qty_in"`
	QtyOut     int64           `json:"qty_out"`
	BalanceQty int64           `json:"balance_qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	RefModule  string          `json:"ref_module,omitempty"`
	RefID      string          `json:"ref_id,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// StockItem is one row of the stock list.
type StockItem struct {
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	ProductID     int64           `json:"product_id"`
	SKU           string          `json:"sku"`
	ProductName   string          `json:"product_name"`
	Unit          string          `json:"unit"`
	Quantity      int64           `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	ReorderLevel  int64           `json:"reorder_level"`
	LowStock      bool            `json:"low_stock"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Value is the quantity valued at moving average cost.
func (s StockItem) Value() decimal.Decimal {
	return s.AvgCost.Mul(decimal.NewFromInt(s.Quantity)).Round(2)
}

// StockFilter narrows the stock list.
type StockFilter struct {
	shared.ListFilters
	WarehouseID *int64
	ProductID   *int64
	LowOnly     bool
}

// ReceiptInput posts inbound stock.
type ReceiptInput struct {
	Code        string          `json:"code" validate:"max=64"`
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Note        string          `json:"note" validate:"max=255"`
}

// AdjustmentInput adjusts stock by a signed quantity.
type AdjustmentInput struct {
	Code        string          `json:"code" validate:"max=64"`
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"required,ne=0"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Note        string          `json:"note" validate:"required,max=255"`
}

// TransferInput moves stock between warehouses.
type TransferInput struct {
	Code          string `json:"code" validate:"max=60"`
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required,gt=0"`
	FromWarehouse int64  `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouse   int64  `json:"to_warehouse_id" validate:"required,gt=0,nefield=FromWarehouse"`
	Note          string `json:"note" validate:"max=255"`
}

// IssueInput removes stock for a dispatch line or, via Return, puts it back.
type IssueInput struct {
	Code        string
	WarehouseID int64
	ProductID   int64
	Quantity    int64
	RefModule   string
	RefID       string
	Note        string
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	WarehouseID int64
	ProductID   int64
	From        time.Time
	To          time.Time
	Limit       int
}

// Line is a requested quantity of a product.
type Line struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// Availability is the stock check result of one product.
type Availability struct {
	ProductID  int64 `json:"product_id"`
	Requested  int64 `json:"requested"`
	Available  int64 `json:"available"`
	Sufficient bool  `json:"sufficient"`
	Shortfall  int64 `json:"shortfall"`
}

var (
	// ErrInsufficientStock is wrapped by ShortageError.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", httpx.ErrUnprocessable)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be non zero", httpx.ErrValidation)
	ErrInvalidUnitCost   = fmt.Errorf("%w: unit cost must be >= 0", httpx.ErrValidation)
	ErrUnknownReference  = fmt.Errorf("%w: unknown warehouse or product", httpx.ErrValidation)
	ErrDuplicateMovement = fmt.Errorf("%w: movement already posted", httpx.ErrConflict)
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("inventory balance not found")
)

// ShortageError reports a movement that would drive stock negative.
type ShortageError struct {
	WarehouseID int64
	ProductID   int64
	Requested   int64
	Available   int64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d in warehouse %d: requested %d, available %d",
		e.ProductID, e.WarehouseID, e.Requested, e.Available)
}

func (e *ShortageError) Unwrap() error { return ErrInsufficientStock }

// Shortfall is the missing quantity.
func (e *ShortageError) Shortfall() int64 { return e.Requested - e.Available }

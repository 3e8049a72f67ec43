package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	ListStock(ctx context.Context, filter StockFilter) ([]StockItem, int, error)
	AvailableQuantity(ctx context.Context, warehouseID, productID int64) (int64, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo             RepositoryPort
	audit            shared.Auditor
	idempotency      *shared.IdempotencyStore
	allowNeg         bool
	checkConcurrency int
	logger           *slog.Logger
	now              func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	// CheckConcurrency bounds parallel lookups of an availability check.
	CheckConcurrency int
}

// NewService builds Service. audit and idem may be nil.
func NewService(repo RepositoryPort, audit shared.Auditor, idem *shared.IdempotencyStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckConcurrency <= 0 {
		cfg.CheckConcurrency = 8
	}
	return &Service{
		repo:             repo,
		audit:            audit,
		idempotency:      idem,
		allowNeg:         cfg.AllowNegativeStock,
		checkConcurrency: cfg.CheckConcurrency,
		logger:           logger,
		now:              time.Now,
	}
}

// PostReceipt posts an inbound movement.
func (s *Service) PostReceipt(ctx context.Context, in ReceiptInput) (StockCardEntry, error) {
	if err := httpx.Validate(in); err != nil {
		return StockCardEntry{}, err
	}
	if in.UnitCost.IsNegative() {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.postMovement(ctx, movementParams{
		Code:        in.Code,
		WarehouseID: in.WarehouseID,
		ProductID:   in.ProductID,
		QtyChange:   in.Quantity,
		UnitCost:    in.UnitCost,
		Type:        MovementIn,
		Note:        in.Note,
	})
}

// PostAdjustment posts an adjustment which may be positive or negative.
// Positive adjustments without a unit cost keep the moving average.
func (s *Service) PostAdjustment(ctx context.Context, in AdjustmentInput) (StockCardEntry, error) {
	if in.Quantity == 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if err := httpx.Validate(in); err != nil {
		return StockCardEntry{}, err
	}
	if in.UnitCost.IsNegative() {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.postMovement(ctx, movementParams{
		Code:        in.Code,
		WarehouseID: in.WarehouseID,
		ProductID:   in.ProductID,
		QtyChange:   in.Quantity,
		UnitCost:    in.UnitCost,
		UseAvgCost:  in.UnitCost.IsZero(),
		Type:        MovementAdjust,
		Note:        in.Note,
	})
}

// PostTransfer moves stock between warehouses using OUT + IN legs in one
// transaction. The inbound leg is valued at the source moving average.
func (s *Service) PostTransfer(ctx context.Context, in TransferInput) (StockCardEntry, StockCardEntry, error) {
	if err := httpx.Validate(in); err != nil {
		return StockCardEntry{}, StockCardEntry{}, err
	}
	code := in.Code
	if code == "" {
		code = fmt.Sprintf("TRF-%d", s.now().UnixNano())
	}
	var outCard, inCard StockCardEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, _ TxRepository) error {
		var err error
		outCard, err = s.postMovement(ctx, movementParams{
			Code:        code + "-OUT",
			WarehouseID: in.FromWarehouse,
			ProductID:   in.ProductID,
			QtyChange:   -in.Quantity,
			Type:        MovementTransfer,
			Note:        fmt.Sprintf("Transfer to %d: %s", in.ToWarehouse, in.Note),
		})
		if err != nil {
			return err
		}
		inCard, err = s.postMovement(ctx, movementParams{
			Code:        code + "-IN",
			WarehouseID: in.ToWarehouse,
			ProductID:   in.ProductID,
			QtyChange:   in.Quantity,
			UnitCost:    outCard.UnitCost,
			Type:        MovementTransfer,
			Note:        fmt.Sprintf("Transfer from %d: %s", in.FromWarehouse, in.Note),
		})
		return err
	})
	if err != nil {
		return StockCardEntry{}, StockCardEntry{}, err
	}
	return outCard, inCard, nil
}

// Issue removes stock for a dispatch. Inside an open transaction the row
// lock is held until the caller commits.
func (s *Service) Issue(ctx context.Context, in IssueInput) (StockCardEntry, error) {
	if in.Quantity <= 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, movementParams{
		Code:        in.Code,
		WarehouseID: in.WarehouseID,
		ProductID:   in.ProductID,
		QtyChange:   -in.Quantity,
		Type:        MovementOut,
		Note:        in.Note,
		RefModule:   in.RefModule,
		RefID:       in.RefID,
	})
}

// Return puts issued stock back at the current moving average.
func (s *Service) Return(ctx context.Context, in IssueInput) (StockCardEntry, error) {
	if in.Quantity <= 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, movementParams{
		Code:        in.Code,
		WarehouseID: in.WarehouseID,
		ProductID:   in.ProductID,
		QtyChange:   in.Quantity,
		UseAvgCost:  true,
		Type:        MovementReturn,
		Note:        in.Note,
		RefModule:   in.RefModule,
		RefID:       in.RefID,
	})
}

// GetStockCard lists stock card entries.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if filter.WarehouseID <= 0 || filter.ProductID <= 0 {
		return nil, fmt.Errorf("%w: warehouse_id and product_id are required", httpx.ErrValidation)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: to must not be before from", httpx.ErrValidation)
	}
	return s.repo.GetStockCard(ctx, filter)
}

// ListStock returns a page of stock balances.
func (s *Service) ListStock(ctx context.Context, filter StockFilter) ([]StockItem, int, error) {
	return s.repo.ListStock(ctx, filter)
}

// LowStock lists balances at or below their product reorder level.
func (s *Service) LowStock(ctx context.Context, filter StockFilter) ([]StockItem, int, error) {
	filter.LowOnly = true
	return s.repo.ListStock(ctx, filter)
}

// CheckAvailability reports per-product availability in a warehouse.
// Lines of the same product are summed; results keep first-seen order.
// The check takes no locks and is advisory only.
func (s *Service) CheckAvailability(ctx context.Context, warehouseID int64, lines []Line) ([]Availability, bool, error) {
	merged := MergeLines(lines)
	results := make([]Availability, len(merged))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.checkConcurrency)
	for i, line := range merged {
		g.Go(func() error {
			available, err := s.repo.AvailableQuantity(gctx, warehouseID, line.ProductID)
			if err != nil {
				return fmt.Errorf("inventory: availability of product %d: %w", line.ProductID, err)
			}
			results[i] = NewAvailability(line.ProductID, line.Quantity, available)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	all := true
	for _, r := range results {
		all = all && r.Sufficient
	}
	return results, all, nil
}

// MergeLines sums quantities per product, keeping first-seen order.
func MergeLines(lines []Line) []Line {
	index := make(map[int64]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

// NewAvailability builds the check result of one product.
func NewAvailability(productID, requested, available int64) Availability {
	a := Availability{ProductID: productID, Requested: requested, Available: available, Sufficient: available >= requested}
	if !a.Sufficient {
		a.Shortfall = requested - available
	}
	return a
}

type movementParams struct {
	Code        string
	WarehouseID int64
	ProductID   int64
	QtyChange   int64
	UnitCost    decimal.Decimal
	UseAvgCost  bool
	Type        MovementType
	Note        string
	RefModule   string
	RefID       string
}

const avgPrecision int32 = 4

func (s *Service) postMovement(ctx context.Context, params movementParams) (StockCardEntry, error) {
	if params.QtyChange == 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if params.WarehouseID <= 0 || params.ProductID <= 0 {
		return StockCardEntry{}, fmt.Errorf("%w: warehouse and product required", httpx.ErrValidation)
	}
	now := s.now().UTC()
	code := params.Code
	if code == "" {
		code = fmt.Sprintf("INV-%d", now.UnixNano())
	}
	actorID := shared.ActorID(ctx)
	key := fmt.Sprintf("%s:%s:%d:%d", params.Type, code, params.WarehouseID, params.ProductID)

	var card StockCardEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return ErrDuplicateMovement
				}
				return err
			}
		}
		balance, err := tx.GetBalanceForUpdate(ctx, params.WarehouseID, params.ProductID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{WarehouseID: params.WarehouseID, ProductID: params.ProductID}
		}
		newQty := balance.Quantity + params.QtyChange
		if !s.allowNeg && newQty < 0 {
			return &ShortageError{
				WarehouseID: params.WarehouseID,
				ProductID:   params.ProductID,
				Requested:   -params.QtyChange,
				Available:   balance.Quantity,
			}
		}
		unitCost, newAvg := valuate(balance, params, newQty)

		m := Movement{
			Code:        code,
			Type:        params.Type,
			WarehouseID: params.WarehouseID,
			ProductID:   params.ProductID,
			BalanceQty:  newQty,
			UnitCost:    unitCost,
			AvgCost:     newAvg,
			RefModule:   params.RefModule,
			RefID:       params.RefID,
			Note:        params.Note,
			CreatedBy:   actorID,
			PostedAt:    now,
		}
		if params.QtyChange > 0 {
			m.QtyIn = params.QtyChange
		} else {
			m.QtyOut = -params.QtyChange
		}
		if _, err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		balance.Quantity = newQty
		balance.AvgCost = newAvg
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		card = StockCardEntry{
			Code:       code,
			Type:       params.Type,
			PostedAt:   now,
			QtyIn:      m.QtyIn,
			QtyOut:     m.QtyOut,
			BalanceQty: newQty,
			UnitCost:   unitCost,
			AvgCost:    newAvg,
			RefModule:  params.RefModule,
			RefID:      params.RefID,
			Note:       params.Note,
		}
		return nil
	})
	if err != nil {
		return StockCardEntry{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("inventory:%s", params.Type),
			Entity:   "inventory_movement",
			EntityID: code,
			Meta: map[string]any{
				"warehouse_id": params.WarehouseID,
				"product_id":   params.ProductID,
				"qty":          params.QtyChange,
				"note":         params.Note,
			},
		}); err != nil {
			s.logger.Warn("audit inventory movement", slog.String("code", code), slog.Any("error", err))
		}
	}
	return card, nil
}

// valuate returns the unit cost of the movement and the new moving average.
// Outbound movements leave the average untouched; an empty balance resets it.
func valuate(balance Balance, params movementParams, newQty int64) (decimal.Decimal, decimal.Decimal) {
	if params.QtyChange < 0 {
		if newQty <= 0 {
			return balance.AvgCost, decimal.Zero
		}
		return balance.AvgCost, balance.AvgCost
	}
	unitCost := params.UnitCost
	if params.UseAvgCost {
		unitCost = balance.AvgCost
	}
	if newQty <= 0 {
		return unitCost, decimal.Zero
	}
	onHand := decimal.Zero
	if balance.Quantity > 0 {
		onHand = decimal.NewFromInt(balance.Quantity).Mul(balance.AvgCost)
	}
	base := balance.Quantity
	if base < 0 {
		base = 0
	}
	total := onHand.Add(decimal.NewFromInt(params.QtyChange).Mul(unitCost))
	avg := total.Div(decimal.NewFromInt(base + params.QtyChange)).Round(avgPrecision)
	return unitCost, avg
}

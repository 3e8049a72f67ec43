package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/depotline/depot/internal/inventory"
	jobmetrics "github.com/depotline/depot/internal/jobs"
	"github.com/depotline/depot/internal/notifications"
	"github.com/depotline/depot/internal/shared"
)

// LowStockSource lists balances at or below reorder level.
type LowStockSource interface {
	LowStock(ctx context.Context, filter inventory.StockFilter) ([]inventory.StockItem, int, error)
}

// Notifier fans a notification out to holders of a permission.
type Notifier interface {
	NotifyPermission(ctx context.Context, perm string, in notifications.Input) (int, error)
}

// Deduper claims a key once.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// LowStockScanJob creates at most one notification per low item per day.
type LowStockScanJob struct {
	Stock    LowStockSource
	Notifier Notifier
	Dedupe   Deduper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(stock LowStockSource, notifier Notifier, dedupe Deduper, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Stock:    stock,
		Notifier: notifier,
		Dedupe:   dedupe,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Stock == nil || j.Notifier == nil || j.Dedupe == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	filter := inventory.StockFilter{}
	if payload.WarehouseID > 0 {
		filter.WarehouseID = &payload.WarehouseID
	}
	items, _, err := j.Stock.LowStock(ctx, filter)
	if err != nil {
		return fmt.Errorf("low stock scan: list: %w", err)
	}

	day := j.clock().Format("20060102")
	notified := 0
	for _, it := range items {
		key := fmt.Sprintf("low_stock:%s:%d:%d", day, it.WarehouseID, it.ProductID)
		if err := j.Dedupe.CheckAndInsert(ctx, key, "jobs"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				continue
			}
			return fmt.Errorf("low stock scan: claim %s: %w", key, err)
		}
		n, err := j.Notifier.NotifyPermission(ctx, shared.PermInventoryView, lowStockNotice(it))
		if err != nil {
			// release the claim so the retry notifies again
			if derr := j.Dedupe.Delete(ctx, key); derr != nil {
				j.logger().Warn("low stock scan: release claim", slog.String("key", key), slog.Any("error", derr))
			}
			return fmt.Errorf("low stock scan: notify: %w", err)
		}
		notified++
		tracker.Count("notifications", n)
	}

	j.logger().Info("completed low stock scan",
		slog.Int("low_items", len(items)),
		slog.Int("notified_items", notified),
	)
	return nil
}

func lowStockNotice(it inventory.StockItem) notifications.Input {
	return notifications.Input{
		Type:  "inventory.low_stock",
		Title: fmt.Sprintf("Low stock: %s at %s", it.SKU, it.WarehouseCode),
		Body: fmt.Sprintf("%s has %d %s on hand, reorder level is %d.",
			it.ProductName, it.Quantity, it.Unit, it.ReorderLevel),
		Link: fmt.Sprintf("/inventory?warehouse_id=%d&product_id=%d", it.WarehouseID, it.ProductID),
	}
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

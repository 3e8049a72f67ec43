package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan notifies inventory viewers about balances at or below reorder level.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskSearchReindex rebuilds the search index from its sources.
	TaskSearchReindex = "search:reindex"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"

	// MaxRetry bounds asynq retries for every task.
	MaxRetry = 3
	// DefaultIdempotencyRetention is how long idempotency keys are kept.
	DefaultIdempotencyRetention = 7 * 24 * time.Hour
)

// LowStockScanPayload scopes a scan to one warehouse when WarehouseID is set.
type LowStockScanPayload struct {
	WarehouseID int64 `json:"warehouse_id,omitempty"`
}

// SearchReindexPayload limits a rebuild to the listed entity types; empty means all.
type SearchReindexPayload struct {
	Types []string `json:"types,omitempty"`
}

// IdempotencyCleanupPayload overrides the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(MaxRetry)), nil
}

// NewLowStockScanTask builds a low stock scan task.
func NewLowStockScanTask(warehouseID int64) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockScanPayload{WarehouseID: warehouseID})
}

// NewSearchReindexTask builds a search rebuild task.
func NewSearchReindexTask(types ...string) (*asynq.Task, error) {
	return newTask(TaskSearchReindex, SearchReindexPayload{Types: types})
}

// NewIdempotencyCleanupTask builds a cleanup task; zero retention uses the default.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
}

// decode unmarshals a task payload; an empty payload leaves dst untouched.
func decode(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return asynq.SkipRetry
	}
	return nil
}

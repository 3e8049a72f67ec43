package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/depotline/depot/internal/inventory"
	"github.com/depotline/depot/internal/notifications"
	"github.com/depotline/depot/internal/observability"
	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
)

// Stock is the inventory surface a dispatch needs.
type Stock interface {
	Issue(ctx context.Context, in inventory.IssueInput) (inventory.StockCardEntry, error)
	Return(ctx context.Context, in inventory.IssueInput) (inventory.StockCardEntry, error)
	CheckAvailability(ctx context.Context, warehouseID int64, lines []inventory.Line) ([]inventory.Availability, bool, error)
}

// Notifier fans a notification out to the holders of a permission.
type Notifier interface {
	NotifyPermission(ctx context.Context, perm string, in notifications.Input) (int, error)
}

// Options carries the optional collaborators of Service.
type Options struct {
	Indexer     search.Indexer
	Audit       shared.Auditor
	Notifier    Notifier
	Idempotency *shared.IdempotencyStore
	Metrics     *observability.Metrics
}

// Service provides business logic for dispatch operations.
type Service struct {
	repo        Repository
	stock       Stock
	catalog     Catalog
	indexer     search.Indexer
	audit       shared.Auditor
	notifier    Notifier
	idempotency *shared.IdempotencyStore
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a dispatch service.
func NewService(repo Repository, stock Stock, catalog Catalog, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		stock:       stock,
		catalog:     catalog,
		indexer:     opts.Indexer,
		audit:       opts.Audit,
		notifier:    opts.Notifier,
		idempotency: opts.Idempotency,
		metrics:     opts.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

const (
	defaultProductLimit = 10
	maxProductLimit     = 50
	maxRequestKeyLength = 128
	numberAttempts      = 3
	refModule           = "dispatch"
)

// ============================================================================
// DISPATCH FORM
// ============================================================================

// ActiveWarehouses lists the warehouses a dispatch can ship from.
func (s *Service) ActiveWarehouses(ctx context.Context) ([]WarehouseOption, error) {
	list, err := s.catalog.ActiveWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]WarehouseOption, 0, len(list))
	for _, w := range list {
		out = append(out, WarehouseOption{ID: w.ID, Code: w.Code, Name: w.Name})
	}
	return out, nil
}

// SearchProducts is the search-as-you-type product lookup. Queries shorter
// than MinQueryLength return an empty list without touching the database.
func (s *Service) SearchProducts(ctx context.Context, q ProductQuery) ([]ProductOption, error) {
	q.Text = strings.TrimSpace(q.Text)
	if utf8.RuneCountInString(q.Text) < MinQueryLength {
		return []ProductOption{}, nil
	}
	if q.WarehouseID <= 0 {
		return nil, &httpx.FieldErrors{Fields: map[string]string{"warehouse_id": "is required"}}
	}
	switch {
	case q.Limit <= 0:
		q.Limit = defaultProductLimit
	case q.Limit > maxProductLimit:
		q.Limit = maxProductLimit
	}
	return s.repo.SearchProducts(ctx, q)
}

// CheckInventory reports per-line availability. It takes no locks; Create
// re-checks every line under lock.
func (s *Service) CheckInventory(ctx context.Context, in CheckInput) (CheckResult, error) {
	if err := httpx.Validate(in); err != nil {
		return CheckResult{}, err
	}
	if _, err := s.warehouse(ctx, in.WarehouseID, false); err != nil {
		return CheckResult{}, err
	}
	items, all, err := s.stock.CheckAvailability(ctx, in.WarehouseID, in.Items)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{WarehouseID: in.WarehouseID, Items: items, AllAvailable: all}, nil
}

// ============================================================================
// DISPATCH OPERATIONS
// ============================================================================

// Create validates the form and, in one transaction, stores the dispatch and
// issues its stock. A short line aborts everything with a *ShortageError.
// With a requestKey a retried submission returns the original dispatch and
// created is false.
func (s *Service) Create(ctx context.Context, in CreateInput, requestKey string) (d Dispatch, created bool, err error) {
	normalizeCreate(&in)
	if err := httpx.Validate(in); err != nil {
		return Dispatch{}, false, err
	}
	requestKey = strings.TrimSpace(requestKey)
	if len(requestKey) > maxRequestKeyLength {
		return Dispatch{}, false, fmt.Errorf("%w: Idempotency-Key is too long", httpx.ErrValidation)
	}
	if _, err := s.warehouse(ctx, in.WarehouseID, true); err != nil {
		return Dispatch{}, false, err
	}
	lines, err := s.buildLines(ctx, in.Items)
	if err != nil {
		return Dispatch{}, false, err
	}

	now := s.now().UTC()
	draft := Dispatch{
		WarehouseID:      in.WarehouseID,
		LogisticsPartner: in.LogisticsPartner,
		TrackingNumber:   in.TrackingNumber,
		RecipientName:    in.RecipientName,
		RecipientPhone:   in.RecipientPhone,
		RecipientAddress: in.RecipientAddress,
		Notes:            in.Notes,
		Status:           StatusPending,
		CreatedBy:        shared.ActorID(ctx),
		CreatedAt:        now,
		UpdatedAt:        now,
		Lines:            lines,
	}
	draft.totals()

	for attempt := 1; ; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context) error {
			return s.insert(ctx, &draft, requestKey)
		})
		if !retryCreate(err) || attempt == numberAttempts {
			break
		}
	}
	if errors.Is(err, errReplayed) {
		existing, err := s.repo.FindByRequestKey(ctx, requestKey)
		if err != nil {
			return Dispatch{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		var shortage *ShortageError
		if errors.As(err, &shortage) {
			s.metrics.StockShortfall()
		}
		return Dispatch{}, false, err
	}

	d, err = s.repo.Get(ctx, draft.ID)
	if err != nil {
		return Dispatch{}, false, err
	}
	s.logger.Info("dispatch created",
		slog.String("dispatch_number", d.Number),
		slog.Int64("warehouse_id", d.WarehouseID),
		slog.Int("lines", len(d.Lines)))
	s.metrics.DispatchTransition(string(StatusPending))
	s.after(ctx, "dispatch.create", d, map[string]any{"lines": len(d.Lines), "total_quantity": d.TotalQuantity})
	return d, true, nil
}

func (s *Service) insert(ctx context.Context, d *Dispatch, requestKey string) error {
	if requestKey != "" {
		if err := s.claim(ctx, requestKey); err != nil {
			return err
		}
	}
	number, err := s.repo.NextNumber(ctx, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("next dispatch number: %w", err)
	}
	d.Number = number
	if err := s.repo.Insert(ctx, d, requestKey); err != nil {
		return err
	}
	return s.issue(ctx, d)
}

// retryCreate reports whether a failed create transaction may run again:
// another request took the number, or InnoDB aborted it on lock contention.
func retryCreate(err error) bool {
	return errors.Is(err, ErrNumberTaken) || db.IsRetryable(err)
}

// claim records requestKey inside the transaction. A concurrent duplicate
// blocks on the key until the first request commits, then replays it.
func (s *Service) claim(ctx context.Context, requestKey string) error {
	if s.idempotency != nil {
		err := s.idempotency.CheckAndInsert(ctx, "dispatch:create:"+requestKey, refModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return errReplayed
		}
		return err
	}
	_, err := s.repo.FindByRequestKey(ctx, requestKey)
	switch {
	case err == nil:
		return errReplayed
	case errors.Is(err, ErrDispatchNotFound):
		return nil
	default:
		return err
	}
}

// issue takes stock for every line in product id order so concurrent
// dispatches lock balance rows in the same sequence. All lines are tried
// so the caller learns every shortfall at once.
func (s *Service) issue(ctx context.Context, d *Dispatch) error {
	ordered := slices.Clone(d.Lines)
	slices.SortFunc(ordered, func(a, b Line) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		}
		return 0
	})

	checked := make(map[int64]inventory.Availability, len(ordered))
	short := false
	for _, l := range ordered {
		card, err := s.stock.Issue(ctx, inventory.IssueInput{
			Code:        d.Number,
			WarehouseID: d.WarehouseID,
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			RefModule:   refModule,
			RefID:       strconv.FormatInt(d.ID, 10),
			Note:        "dispatch " + d.Number,
		})
		var shortage *inventory.ShortageError
		switch {
		case errors.As(err, &shortage):
			short = true
			checked[l.ProductID] = inventory.NewAvailability(l.ProductID, l.Quantity, shortage.Available)
		case err != nil:
			return fmt.Errorf("issue product %d: %w", l.ProductID, err)
		default:
			checked[l.ProductID] = inventory.NewAvailability(l.ProductID, l.Quantity, card.BalanceQty+l.Quantity)
		}
	}
	if !short {
		return nil
	}
	lines := make([]inventory.Availability, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, checked[l.ProductID])
	}
	return &ShortageError{WarehouseID: d.WarehouseID, Lines: lines}
}

// Ship hands the dispatch to its logistics partner.
func (s *Service) Ship(ctx context.Context, id int64, in ShipInput) (Dispatch, error) {
	if err := httpx.Validate(in); err != nil {
		return Dispatch{}, err
	}
	change := StatusChange{To: StatusDispatched}
	if tn := strings.TrimSpace(in.TrackingNumber); tn != "" {
		change.TrackingNumber = &tn
	}
	return s.transition(ctx, id, change, "dispatch.ship", nil)
}

// Deliver marks a shipped dispatch as delivered.
func (s *Service) Deliver(ctx context.Context, id int64) (Dispatch, error) {
	return s.transition(ctx, id, StatusChange{To: StatusDelivered}, "dispatch.deliver", nil)
}

// Cancel cancels the dispatch and returns its stock in the same transaction.
func (s *Service) Cancel(ctx context.Context, id int64, in CancelInput) (Dispatch, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := httpx.Validate(in); err != nil {
		return Dispatch{}, err
	}
	return s.transition(ctx, id, StatusChange{To: StatusCancelled, Reason: in.Reason}, "dispatch.cancel",
		func(ctx context.Context, d Dispatch) error {
			for _, l := range d.Lines {
				if _, err := s.stock.Return(ctx, inventory.IssueInput{
					Code:        d.Number,
					WarehouseID: d.WarehouseID,
					ProductID:   l.ProductID,
					Quantity:    l.Quantity,
					RefModule:   refModule,
					RefID:       strconv.FormatInt(d.ID, 10),
					Note:        "cancelled: " + in.Reason,
				}); err != nil {
					return fmt.Errorf("return product %d: %w", l.ProductID, err)
				}
			}
			return nil
		})
}

func (s *Service) transition(ctx context.Context, id int64, change StatusChange, action string, during func(context.Context, Dispatch) error) (Dispatch, error) {
	if id <= 0 {
		return Dispatch{}, fmt.Errorf("%w: invalid dispatch id", httpx.ErrValidation)
	}
	change.At = s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(change.To) {
			return fmt.Errorf("%w: %s dispatch cannot become %s", ErrInvalidTransition, current.Status, change.To)
		}
		change.From = current.Status
		if during != nil {
			if err := during(ctx, current); err != nil {
				return err
			}
		}
		return s.repo.UpdateStatus(ctx, id, change)
	})
	if err != nil {
		return Dispatch{}, err
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Dispatch{}, err
	}
	s.metrics.DispatchTransition(string(change.To))
	meta := map[string]any{"from": string(change.From), "to": string(change.To)}
	if change.Reason != "" {
		meta["reason"] = change.Reason
	}
	s.after(ctx, action, d, meta)
	return d, nil
}

// Get returns a dispatch with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Dispatch, error) {
	if id <= 0 {
		return Dispatch{}, fmt.Errorf("%w: invalid dispatch id", httpx.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of dispatch headers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, &httpx.FieldErrors{Fields: map[string]string{"status": "is not a dispatch status"}}
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, &httpx.FieldErrors{Fields: map[string]string{"to": "must not be before from"}}
	}
	if filter.Limit <= 0 {
		filter.Limit = shared.DefaultLimit
	}
	return s.repo.List(ctx, filter)
}

// SearchDocuments lists every dispatch for a search rebuild.
func (s *Service) SearchDocuments(ctx context.Context) ([]search.Document, error) {
	list, _, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(list))
	for _, d := range list {
		docs = append(docs, d.Document())
	}
	return docs, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) warehouse(ctx context.Context, id int64, requireActive bool) (WarehouseOption, error) {
	w, err := s.catalog.Warehouse(ctx, id)
	if errors.Is(err, httpx.ErrNotFound) {
		return WarehouseOption{}, &httpx.FieldErrors{Fields: map[string]string{"warehouse_id": "does not exist"}}
	}
	if err != nil {
		return WarehouseOption{}, err
	}
	if requireActive && !w.IsActive {
		return WarehouseOption{}, ErrWarehouseInactive
	}
	return WarehouseOption{ID: w.ID, Code: w.Code, Name: w.Name}, nil
}

// buildLines merges repeated products and prices every line.
func (s *Service) buildLines(ctx context.Context, items []LineInput) ([]Line, error) {
	index := make(map[int64]int, len(items))
	lines := make([]Line, 0, len(items))
	fields := map[string]string{}
	for i, item := range items {
		if at, ok := index[item.ProductID]; ok {
			lines[at].Quantity += item.Quantity
			continue
		}
		p, err := s.catalog.Product(ctx, item.ProductID)
		if errors.Is(err, httpx.ErrNotFound) {
			fields[fmt.Sprintf("items[%d].product_id", i)] = "does not exist"
			continue
		}
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			fields[fmt.Sprintf("items[%d].product_id", i)] = "is inactive"
			continue
		}
		price := p.Price
		if item.UnitPrice != nil {
			if item.UnitPrice.IsNegative() {
				fields[fmt.Sprintf("items[%d].unit_price", i)] = "must not be negative"
				continue
			}
			price = *item.UnitPrice
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, Line{
			ProductID:   p.ID,
			SKU:         p.SKU,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   price.Round(2),
		})
	}
	if len(fields) > 0 {
		return nil, &httpx.FieldErrors{Fields: fields}
	}
	return lines, nil
}

func normalizeCreate(in *CreateInput) {
	in.LogisticsPartner = strings.TrimSpace(in.LogisticsPartner)
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.RecipientPhone = strings.TrimSpace(in.RecipientPhone)
	in.RecipientAddress = strings.TrimSpace(in.RecipientAddress)
	in.Notes = strings.TrimSpace(in.Notes)
}

var notices = map[Status]string{
	StatusPending:    "New dispatch %s",
	StatusDispatched: "Dispatch %s shipped",
	StatusDelivered:  "Dispatch %s delivered",
	StatusCancelled:  "Dispatch %s cancelled",
}

// after runs the side effects of a committed change. Failures are logged and
// never undo the change.
func (s *Service) after(ctx context.Context, action string, d Dispatch, meta map[string]any) {
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, d.Document()); err != nil {
			s.logger.Warn("search index update failed", slog.Int64("dispatch_id", d.ID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		meta["dispatch_number"] = d.Number
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "dispatch",
			EntityID: strconv.FormatInt(d.ID, 10),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit dispatch", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		in := notifications.Input{
			Type:  action,
			Title: fmt.Sprintf(notices[d.Status], d.Number),
			Body:  fmt.Sprintf("%s to %s via %s (%d units)", d.WarehouseCode, d.RecipientName, d.LogisticsPartner, d.TotalQuantity),
			Link:  d.Link(),
		}
		if _, err := s.notifier.NotifyPermission(ctx, shared.PermDispatchView, in); err != nil {
			s.logger.Warn("notify dispatch change", slog.String("action", action), slog.Any("error", err))
		}
	}
}

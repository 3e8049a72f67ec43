package inventory

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/", h.list)
		r.Get("/low-stock", h.lowStock)
		r.Get("/stock-card", h.stockCard)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/receipts", h.receipt)
		r.Post("/adjustments", h.adjustment)
		r.Post("/transfers", h.transfer)
	})
	r.With(h.rbac.RequireAll(shared.PermInventoryExport)).Get("/export", h.export)
}

func parseStockFilter(r *http.Request) StockFilter {
	filter := StockFilter{
		ListFilters: shared.ParseListFilters(r),
		WarehouseID: shared.QueryInt64(r, "warehouse_id"),
		ProductID:   shared.QueryInt64(r, "product_id"),
	}
	filter.LowOnly, _ = strconv.ParseBool(r.URL.Query().Get("low"))
	return filter
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := parseStockFilter(r)
	items, total, err := h.service.ListStock(r.Context(), filter)
	if err != nil {
		h.fail(w, "list stock", err)
		return
	}
	httpx.Page(w, items, shared.NewPagination(filter.Page, filter.Limit, total))
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	filter := parseStockFilter(r)
	items, total, err := h.service.LowStock(r.Context(), filter)
	if err != nil {
		h.fail(w, "list low stock", err)
		return
	}
	httpx.Page(w, items, shared.NewPagination(filter.Page, filter.Limit, total))
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockCardFilter{}
	fields := map[string]string{}
	if id := shared.QueryInt64(r, "warehouse_id"); id != nil {
		filter.WarehouseID = *id
	} else {
		fields["warehouse_id"] = "is required"
	}
	if id := shared.QueryInt64(r, "product_id"); id != nil {
		filter.ProductID = *id
	} else {
		fields["product_id"] = "is required"
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			fields["from"] = "must be YYYY-MM-DD"
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			fields["to"] = "must be YYYY-MM-DD"
		} else {
			filter.To = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if len(fields) > 0 {
		httpx.RespondError(w, &httpx.FieldErrors{Fields: fields})
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	entries, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		h.fail(w, "stock card", err)
		return
	}
	httpx.OK(w, http.StatusOK, entries)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	var in ReceiptInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	card, err := h.service.PostReceipt(r.Context(), in)
	if err != nil {
		h.fail(w, "post receipt", err)
		return
	}
	httpx.OK(w, http.StatusCreated, card)
}

func (h *Handler) adjustment(w http.ResponseWriter, r *http.Request) {
	var in AdjustmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	card, err := h.service.PostAdjustment(r.Context(), in)
	if err != nil {
		h.fail(w, "post adjustment", err)
		return
	}
	httpx.OK(w, http.StatusCreated, card)
}

type transferResponse struct {
	Out StockCardEntry `json:"out"`
	In  StockCardEntry `json:"in"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var in TransferInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, inCard, err := h.service.PostTransfer(r.Context(), in)
	if err != nil {
		h.fail(w, "post transfer", err)
		return
	}
	httpx.OK(w, http.StatusCreated, transferResponse{Out: out, In: inCard})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := h.service.Export(r.Context(), parseStockFilter(r), &buf)
	if err != nil {
		h.fail(w, "export stock", err)
		return
	}
	h.logger.Info("stock exported", slog.Int64("user_id", shared.ActorID(r.Context())), slog.Int("rows", n))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stock-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

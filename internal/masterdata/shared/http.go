package shared

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/search"
	internalShared "github.com/depotline/depot/internal/shared"
)

// ParseID reads the {id} URL parameter, writing a 400 when it is not a
// positive integer.
func ParseID(w http.ResponseWriter, r *http.Request, entity string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid "+entity+" id")
		return 0, false
	}
	return id, true
}

// Fail writes err and logs it when it maps to a server error.
func Fail(logger *slog.Logger, w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// Reindex pushes doc to indexer, logging instead of failing the caller.
func Reindex(ctx context.Context, logger *slog.Logger, indexer search.Indexer, doc search.Document) {
	if indexer == nil {
		return
	}
	if err := indexer.Index(ctx, doc); err != nil {
		logger.Warn("search index update failed", slog.String("entity_type", string(doc.EntityType)), slog.Int64("entity_id", doc.EntityID), slog.Any("error", err))
	}
}

// Unindex removes a document, logging failures.
func Unindex(ctx context.Context, logger *slog.Logger, indexer search.Indexer, entityType search.EntityType, id int64) {
	if indexer == nil {
		return
	}
	if err := indexer.Remove(ctx, entityType, id); err != nil {
		logger.Warn("search index removal failed", slog.String("entity_type", string(entityType)), slog.Int64("entity_id", id), slog.Any("error", err))
	}
}

// Record writes an audit entry, logging failures.
func Record(ctx context.Context, logger *slog.Logger, audit internalShared.Auditor, log internalShared.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.Record(ctx, log); err != nil {
		logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

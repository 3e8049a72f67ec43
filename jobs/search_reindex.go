package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/depotline/depot/internal/jobs"
	"github.com/depotline/depot/internal/search"
)

// Reindexer rebuilds search documents from sources.
type Reindexer interface {
	Reindex(ctx context.Context, sources map[search.EntityType]search.Source) (int, error)
}

// SearchReindexJob rebuilds the search index.
type SearchReindexJob struct {
	Index   Reindexer
	Sources map[search.EntityType]search.Source
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewSearchReindexJob(index Reindexer, sources map[search.EntityType]search.Source, logger *slog.Logger, metrics *jobmetrics.Metrics) *SearchReindexJob {
	return &SearchReindexJob{Index: index, Sources: sources, Logger: logger, Metrics: metrics}
}

// Handle executes the rebuild.
func (j *SearchReindexJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Index == nil {
		return errors.New("search reindex: handler not configured")
	}
	var payload SearchReindexPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	sources, err := j.selectSources(payload.Types)
	if err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskSearchReindex)
	defer func() { resultErr = tracker.End(resultErr) }()

	start := time.Now()
	n, err := j.Index.Reindex(ctx, sources)
	if err != nil {
		return err
	}
	tracker.Count("documents", n)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("completed search reindex",
		slog.Int("sources", len(sources)),
		slog.Int("documents", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *SearchReindexJob) selectSources(types []string) (map[search.EntityType]search.Source, error) {
	if len(types) == 0 {
		return j.Sources, nil
	}
	out := make(map[search.EntityType]search.Source, len(types))
	for _, typ := range types {
		src, ok := j.Sources[search.EntityType(typ)]
		if !ok {
			return nil, fmt.Errorf("search reindex: unknown entity type %q: %w", typ, asynq.SkipRetry)
		}
		out[search.EntityType(typ)] = src
	}
	return out, nil
}

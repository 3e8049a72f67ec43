package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/depotline/depot/internal/dispatch"
)

// Service builds the dashboard summary.
type Service struct {
	repo   Repository
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service. cache may be nil; loc defaults to UTC and
// decides where "today" starts.
func NewService(repo Repository, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, loc: loc, logger: logger, now: time.Now}
}

// Summary returns the dashboard figures, served from cache when warm.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	summary, err := s.cache.Fetch(ctx, s.compute)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: summary: %w", err)
	}
	return summary, nil
}

func (s *Service) compute(ctx context.Context) (Summary, error) {
	started := time.Now()
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	var (
		out      = Summary{GeneratedAt: now.UTC()}
		byStatus map[string]int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Products, err = s.repo.CountProducts(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Warehouses, err = s.repo.CountWarehouses(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.UnitsOnHand, err = s.repo.UnitsOnHand(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.LowStock, err = s.repo.CountLowStock(ctx)
		return err
	})
	g.Go(func() (err error) {
		byStatus, err = s.repo.DispatchesByStatus(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.CreatedToday, err = s.repo.DispatchesCreatedSince(ctx, today.UTC())
		return err
	})
	g.Go(func() (err error) {
		out.RecentDispatch, err = s.repo.RecentDispatches(ctx, RecentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	out.Dispatches = make(map[string]int, len(dispatch.Statuses))
	for _, st := range dispatch.Statuses {
		out.Dispatches[string(st)] = byStatus[string(st)]
	}
	s.logger.Debug("dashboard summary computed", slog.Duration("elapsed", time.Since(started)))
	return out, nil
}

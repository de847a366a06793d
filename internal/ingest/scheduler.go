// internal/ingest/scheduler.go
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"gitpulse/internal/github"
	"gitpulse/internal/store"
)

// Number of repositories to refresh in parallel per cycle.
const refreshConcurrency = 3

// Scheduler periodically re-ingests every active repository. It is a thin
// external caller of the orchestrator: ingestion is idempotent, so a cycle
// that dies halfway is simply picked up again on the next tick. When the API
// quota runs out the whole cycle is abandoned until the next tick, since
// every remaining repository would hit the same limit.
type Scheduler struct {
	service  *Service
	queries  store.Querier
	logger   *slog.Logger
	interval time.Duration
	perPage  int
	maxPages int
}

func NewScheduler(service *Service, queries store.Querier, logger *slog.Logger, interval time.Duration, perPage, maxPages int) *Scheduler {
	return &Scheduler{
		service:  service,
		queries:  queries,
		logger:   logger,
		interval: interval,
		perPage:  perPage,
		maxPages: maxPages,
	}
}

// Start blocks until ctx is done, running one refresh cycle per interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background refresher", "interval", s.interval.String(), "concurrency", refreshConcurrency)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Background refresher shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	names, err := s.queries.ListActiveRepoFullNames(ctx)
	if err != nil {
		s.logger.Error("Failed to list repositories for refresh", "error", err)
		return
	}
	if len(names) == 0 {
		return
	}
	s.logger.Info("Starting refresh cycle", "repos", len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, name := range names {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			id, err := ParseRepoIdentifier(name)
			if err != nil {
				s.logger.Error("Skipping repository with malformed name", "full_name", name, "error", err)
				return nil
			}

			_, err = s.service.Ingest(gctx, id, s.perPage, s.maxPages)

			var rateLimited *github.RateLimitedError
			if errors.As(err, &rateLimited) {
				s.logger.Warn("Refresh cycle rate limited, abandoning remaining repositories",
					"reset", rateLimited.Reset, "remaining", rateLimited.Remaining)
				return err
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Failed to refresh repository", "full_name", name, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("Refresh cycle aborted", "error", err)
	} else {
		s.logger.Info("Refresh cycle finished")
	}
}

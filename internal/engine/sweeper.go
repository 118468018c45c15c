package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

const claimKeyPrefix = "sla:claim:"

// Sweeper periodically re-runs the pipeline over all open, tracked tickets
// so that pure elapsed time crosses thresholds even when nobody touches a
// ticket. Per-ticket Redis claims let overlapping sweeps and event-driven
// runs skip tickets already being processed.
type Sweeper struct {
	tickets  repository.TicketSLARepository
	pipeline *Pipeline
	claims   *redis.Client
	cfg      config.SweepConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// SweepStats aggregates one sweep's outcome.
type SweepStats struct {
	Processed int
	Failed    int
	Skipped   int
}

// NewSweeper constructs the sweeper. claims may be nil; sweeps then run
// without cross-process claim coordination.
func NewSweeper(tickets repository.TicketSLARepository, pipeline *Pipeline, claims *redis.Client, cfg config.SweepConfig, metrics *observability.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		tickets:  tickets,
		pipeline: pipeline,
		claims:   claims,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start runs the sweep loop until the context ends.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	s.logger.Info("sweep loop started", zap.Duration("interval", s.cfg.Interval()))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep loop stopped")
			return
		case <-ticker.C:
			stats, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("sweep aborted", zap.Error(err))
				continue
			}
			s.metrics.RecordSweep(stats.Processed, stats.Failed, stats.Skipped)
			if stats.Failed > 0 {
				s.logger.Warn("sweep finished with failures",
					zap.Int("processed", stats.Processed),
					zap.Int("failed", stats.Failed),
					zap.Int("skipped", stats.Skipped))
			} else {
				s.logger.Debug("sweep finished",
					zap.Int("processed", stats.Processed),
					zap.Int("skipped", stats.Skipped))
			}
		}
	}
}

// RunOnce sweeps every open tracked ticket in bounded parallel batches.
// Ticket failures are isolated: the sweep continues and reports an aggregate
// count.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	afterID := ""

	for {
		batch, err := s.tickets.ListOpenTracked(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return stats, err
		}
		if len(batch) == 0 {
			return stats, nil
		}
		afterID = batch[len(batch)-1].ID

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.parallelism())
		results := make([]int, len(batch)) // 0 processed, 1 failed, 2 skipped

		for i := range batch {
			i := i
			ticketID := batch[i].ID
			group.Go(func() error {
				if !s.claim(groupCtx, ticketID) {
					results[i] = 2
					return nil
				}
				defer s.release(groupCtx, ticketID)
				if err := s.pipeline.Run(groupCtx, ticketID, time.Now()); err != nil {
					s.logger.Error("sweep ticket failed", zap.String("ticket_id", ticketID), zap.Error(err))
					results[i] = 1
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return stats, err
		}
		for _, r := range results {
			switch r {
			case 1:
				stats.Failed++
			case 2:
				stats.Skipped++
			default:
				stats.Processed++
			}
		}
		if len(batch) < s.cfg.BatchSize {
			return stats, nil
		}
	}
}

func (s *Sweeper) parallelism() int {
	if s.cfg.Parallelism <= 0 {
		return 1
	}
	return s.cfg.Parallelism
}

// claim takes the per-ticket lock. On Redis errors the ticket is processed
// anyway: a duplicate run is safe, a missed one is not.
func (s *Sweeper) claim(ctx context.Context, ticketID string) bool {
	if s.claims == nil {
		return true
	}
	ok, err := s.claims.SetNX(ctx, claimKeyPrefix+ticketID, 1, s.cfg.ClaimTTL()).Result()
	if err != nil {
		s.logger.Warn("sweep claim failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return true
	}
	return ok
}

func (s *Sweeper) release(ctx context.Context, ticketID string) {
	if s.claims == nil {
		return
	}
	if err := s.claims.Del(ctx, claimKeyPrefix+ticketID).Err(); err != nil {
		s.logger.Debug("sweep claim release failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

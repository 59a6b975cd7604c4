package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/events"
)

const sweepBatch = 100

// Sweeper reports jobs that have sat in pending or printing for too long.
// It only reports; recovering a stuck job is an operator retry.
type Sweeper struct {
	store     JobStore
	events    events.Publisher
	log       *zap.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

func NewSweeper(store JobStore, pub events.Publisher, log *zap.Logger, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		events:    pub,
		log:       log,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is done. A zero interval or threshold
// disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.threshold <= 0 {
		s.log.Info("stale job sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("stale job sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("stale job sweep", zap.Int("stale", n))
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	rows, err := s.store.ListStale(ctx, now.Add(-s.threshold), sweepBatch)
	if err != nil {
		return 0, err
	}

	for _, r := range rows {
		since := r.CreatedAt
		if r.Status == string(StatusPrinting) && r.ClaimedAt.Valid {
			since = r.ClaimedAt.Time
		}
		age := now.Sub(since)

		s.log.Warn("print job is stale",
			zap.String("job_id", r.ID),
			zap.Int64("restaurant_id", r.RestaurantID),
			zap.String("status", r.Status),
			zap.Duration("age", age))

		if s.events == nil {
			continue
		}
		err := s.events.Publish(ctx, events.Event{
			Event:     events.JobStale,
			Timestamp: now.UTC(),
			Data: events.JobData{
				JobID:        r.ID,
				RestaurantID: r.RestaurantID,
				JobType:      r.JobType,
				Status:       r.Status,
				Client:       r.PrintedByClient,
				AgeSeconds:   int64(age / time.Second),
			},
		})
		if err != nil {
			s.log.Warn("failed to publish job event", zap.String("job_id", r.ID), zap.Error(err))
		}
	}
	return len(rows), nil
}

package room

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts rooms older than maxAge. It takes the same
// store lock as message handlers, so a sweep cannot interleave with a join
// or leave mid-operation.
type Sweeper struct {
	store    *Store
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(store *Store, maxAge, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	expired := s.store.SweepExpired(s.maxAge)
	if len(expired) > 0 {
		s.logger.Info("expired rooms swept",
			slog.Int("count", len(expired)),
			slog.Any("roomIds", expired),
		)
	}
}

package recorder

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/internal/domain"
	"github.com/vadiminshakov/lobsim/pkg/retrier"
)

// Fetcher retrieves one order book snapshot from an exchange.
type Fetcher interface {
	Fetch(ctx context.Context) (*domain.Snapshot, error)
}

// Writer persists snapshots.
type Writer interface {
	Write(snap *domain.Snapshot) error
}

// Recorder polls a Fetcher at a fixed interval and appends every snapshot
// to a Writer until the context is cancelled.
type Recorder struct {
	fetcher  Fetcher
	writer   Writer
	interval time.Duration
	retrier  *retrier.Retrier
	lg       *zap.Logger
}

// New creates a Recorder polling at the given interval.
func New(fetcher Fetcher, writer Writer, interval time.Duration, lg *zap.Logger) *Recorder {
	return &Recorder{
		fetcher:  fetcher,
		writer:   writer,
		interval: interval,
		retrier: retrier.New(
			retrier.WithInitialInterval(200*time.Millisecond),
			retrier.WithMaxInterval(5*time.Second),
			retrier.WithMaxRetries(3),
		),
		lg: lg,
	}
}

// Run polls until ctx is cancelled. Snapshots that still fail after retries
// are skipped with a warning, the loop keeps going.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var written int64

	r.lg.Info("recorder started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.lg.Info("recorder stopped", zap.Int64("snapshots", written))
			return nil
		case <-ticker.C:
		}

		snap, err := retrier.DoWithData(r.retrier, ctx, func(ctx context.Context) (*domain.Snapshot, error) {
			return r.fetcher.Fetch(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				r.lg.Info("recorder stopped", zap.Int64("snapshots", written))
				return nil
			}
			r.lg.Warn("snapshot fetch failed, skipping tick", zap.Error(err))
			continue
		}

		if err := r.writer.Write(snap); err != nil {
			return errors.Wrap(err, "write snapshot")
		}

		written++
		if written%100 == 0 {
			r.lg.Info("recording progress",
				zap.Int64("snapshots", written),
				zap.Int64("last_ts", snap.Timestamp))
		}
	}
}

package source

import (
	"context"

	"github.com/vadiminshakov/lobsim/internal/backtest"
	"github.com/vadiminshakov/lobsim/internal/domain"
)

// SliceSource serves an in-memory snapshot sequence, mainly for tests and
// parameter sweeps over pre-loaded data.
type SliceSource struct {
	snaps []*domain.Snapshot
	next  int
}

// NewSliceSource wraps the given snapshots. The slice is not copied; callers
// must not mutate it while the run is active.
func NewSliceSource(snaps []*domain.Snapshot) *SliceSource {
	return &SliceSource{snaps: snaps}
}

// Next implements backtest.SnapshotSource.
func (s *SliceSource) Next() (*domain.Snapshot, error) {
	if s.next >= len(s.snaps) {
		return nil, backtest.ErrEndOfStream
	}
	snap := s.snaps[s.next]
	s.next++
	return snap, nil
}

// ChannelSource bridges an asynchronously produced snapshot stream into the
// driver's synchronous pull loop. The producer closes the channel to signal
// end of stream; context cancellation also ends the stream so the tick loop
// is never left blocked.
type ChannelSource struct {
	ctx context.Context
	ch  <-chan *domain.Snapshot
}

// NewChannelSource wraps a producer channel.
func NewChannelSource(ctx context.Context, ch <-chan *domain.Snapshot) *ChannelSource {
	return &ChannelSource{ctx: ctx, ch: ch}
}

// Next implements backtest.SnapshotSource. It blocks until a snapshot is
// available, the channel closes, or the context is cancelled.
func (s *ChannelSource) Next() (*domain.Snapshot, error) {
	select {
	case <-s.ctx.Done():
		return nil, backtest.ErrEndOfStream
	case snap, ok := <-s.ch:
		if !ok {
			return nil, backtest.ErrEndOfStream
		}
		return snap, nil
	}
}

package backtest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/domain"
	"github.com/vadiminshakov/lobsim/internal/strategy"
)

// sliceSource feeds pre-built snapshots to the driver.
type sliceSource struct {
	snaps []*domain.Snapshot
	next  int
}

func (s *sliceSource) Next() (*domain.Snapshot, error) {
	if s.next >= len(s.snaps) {
		return nil, ErrEndOfStream
	}
	snap := s.snaps[s.next]
	s.next++
	return snap, nil
}

// captureSink records journaled fill events in memory.
type captureSink struct {
	events []domain.FillEvent
}

func (c *captureSink) Append(ev domain.FillEvent) error {
	c.events = append(c.events, ev)
	return nil
}

// oneShotStrategy emits a single market order on the first tick.
type oneShotStrategy struct {
	side  domain.Side
	qty   decimal.Decimal
	fired bool
}

func (s *oneShotStrategy) Name() string { return "oneshot" }

func (s *oneShotStrategy) Decide(snap *domain.Snapshot, acct strategy.AccountView) []domain.OrderIntent {
	if s.fired {
		return nil
	}
	s.fired = true
	intent, err := domain.NewMarketIntent(snap.Symbol, s.side, s.qty)
	if err != nil {
		return nil
	}
	return []domain.OrderIntent{intent}
}

func (s *oneShotStrategy) OnOutcome(string, domain.Outcome) {}
func (s *oneShotStrategy) Reset()                           { s.fired = false }

func passiveMakerConfig() config.MarketMakerConfig {
	return config.MarketMakerConfig{
		OrderSize:     decimal.NewFromInt(1),
		SpreadPercent: d("0.001"),
		MaxInventory:  decimal.NewFromInt(10),
	}
}

func newMaker(t *testing.T) *strategy.MarketMaker {
	t.Helper()
	mm, err := strategy.NewMarketMaker("BTCUSDT", passiveMakerConfig(), zap.NewNop())
	require.NoError(t, err)
	return mm
}

// TestDriverMarketMakerRoundTrips replays three snapshots with every friction
// disabled. Quotes posted on one tick fill passively on the next, so each
// round trip captures exactly the quoted spread.
func TestDriverMarketMakerRoundTrips(t *testing.T) {
	cfg := frictionlessConfig()
	src := &sliceSource{snaps: []*domain.Snapshot{
		snapshot("100", "100.1", 1000),
		snapshot("100", "100.2", 2000),
		snapshot("99.9", "100.1", 3000),
	}}

	driver, err := NewDriver(cfg, newMaker(t), src, zap.NewNop())
	require.NoError(t, err)

	sink := &captureSink{}
	driver.WithFillSink(sink)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, driver.State())

	// tick 1 mid 100.05: quotes at 99.999975 / 100.100025 rest
	// tick 2 both fill passively, spread captured: 0.10005
	// tick 2 mid 100.1: quotes at 100.04995 / 100.15005 rest
	// tick 3 both fill passively, spread captured: 0.1001
	assert.True(t, report.RealizedPnL.Equal(d("0.20015")), "got %s", report.RealizedPnL)
	assert.True(t, report.UnrealizedPnL.IsZero())
	assert.True(t, report.TotalPnL.Equal(d("0.20015")))
	assert.Equal(t, 4, report.TradeCount)
	assert.Equal(t, 2, report.WinningTrades)
	assert.Equal(t, 0, report.LosingTrades)
	assert.Equal(t, 1.0, report.WinRate)
	assert.Equal(t, 3, report.Ticks)
	assert.True(t, report.MaxDrawdown.IsZero())
	assert.False(t, report.BlownUp)

	curve := driver.EquityCurve()
	require.Len(t, curve, 3)
	assert.True(t, curve[0].Equity.Equal(d("10000")), "got %s", curve[0].Equity)
	assert.True(t, curve[1].Equity.Equal(d("10000.10005")), "got %s", curve[1].Equity)
	assert.True(t, curve[2].Equity.Equal(d("10000.20015")), "got %s", curve[2].Equity)

	// the journal saw the same four fills
	require.Len(t, sink.events, 4)
	assert.Equal(t, "buy", sink.events[0].Side)
	assert.Equal(t, "sell", sink.events[1].Side)

	// two quotes from tick 3 still rest at run end
	assert.Len(t, driver.Account().RestingOrders(), 2)
}

func TestDriverDeterminism(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.FillRate = 0.6
	cfg.RejectionRate = 0.05
	cfg.Seed = 99

	snaps := func() []*domain.Snapshot {
		return []*domain.Snapshot{
			snapshot("100", "100.1", 1000),
			snapshot("100.05", "100.15", 2000),
			snapshot("99.95", "100.05", 3000),
			snapshot("100.1", "100.2", 4000),
			snapshot("100", "100.1", 5000),
		}
	}

	run := func() (Report, []EquityPoint) {
		driver, err := NewDriver(cfg, newMaker(t), &sliceSource{snaps: snaps()}, zap.NewNop())
		require.NoError(t, err)
		report, err := driver.Run(context.Background())
		require.NoError(t, err)
		return report, driver.EquityCurve()
	}

	r1, c1 := run()
	r2, c2 := run()

	assert.True(t, r1.RealizedPnL.Equal(r2.RealizedPnL))
	assert.True(t, r1.TotalPnL.Equal(r2.TotalPnL))
	assert.Equal(t, r1.TradeCount, r2.TradeCount)
	require.Len(t, c2, len(c1))
	for i := range c1 {
		assert.True(t, c1[i].Equity.Equal(c2[i].Equity), "tick %d: %s vs %s", i, c1[i].Equity, c2[i].Equity)
	}
}

func TestDriverEmptySource(t *testing.T) {
	driver, err := NewDriver(frictionlessConfig(), newMaker(t), &sliceSource{}, zap.NewNop())
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, driver.State())
	assert.Equal(t, 0, report.Ticks)
	assert.False(t, report.SharpeDefined)
}

func TestDriverRejectsInvalidConfig(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.FillRate = 1.5

	_, err := NewDriver(cfg, newMaker(t), &sliceSource{}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestDriverDataErrorSkip(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.OnDataError = config.DataErrorSkip

	bad := &domain.Snapshot{Symbol: "BTCUSDT", Timestamp: 2000,
		Bids: []domain.PriceLevel{{Price: d("100"), Quantity: d("1")}}}
	src := &sliceSource{snaps: []*domain.Snapshot{
		snapshot("100", "100.1", 1000),
		bad,
		snapshot("100", "100.2", 3000),
	}}

	driver, err := NewDriver(cfg, newMaker(t), src, zap.NewNop())
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, driver.State())
	assert.Equal(t, 2, report.Ticks)
	assert.Equal(t, 1, report.DataErrors)
}

func TestDriverDataErrorAbort(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.OnDataError = config.DataErrorAbort

	bad := &domain.Snapshot{Symbol: "BTCUSDT", Timestamp: 2000,
		Asks: []domain.PriceLevel{{Price: d("100.1"), Quantity: d("1")}}}
	src := &sliceSource{snaps: []*domain.Snapshot{
		snapshot("100", "100.1", 1000),
		bad,
	}}

	driver, err := NewDriver(cfg, newMaker(t), src, zap.NewNop())
	require.NoError(t, err)

	_, err = driver.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateAborted, driver.State())
}

func TestDriverRejectsBackwardsTimestamps(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.OnDataError = config.DataErrorAbort

	src := &sliceSource{snaps: []*domain.Snapshot{
		snapshot("100", "100.1", 2000),
		snapshot("100", "100.1", 1000),
	}}

	driver, err := NewDriver(cfg, newMaker(t), src, zap.NewNop())
	require.NoError(t, err)

	_, err = driver.Run(context.Background())
	require.Error(t, err)
}

func TestDriverAdmitsEqualTimestamps(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.OnDataError = config.DataErrorAbort

	// a REST poller can deliver the same book timestamp twice in a row;
	// both snapshots are valid ticks, only going backwards is an error
	src := &sliceSource{snaps: []*domain.Snapshot{
		snapshot("100", "100.1", 1000),
		snapshot("100", "100.2", 1000),
		snapshot("100", "100.2", 2000),
	}}

	driver, err := NewDriver(cfg, newMaker(t), src, zap.NewNop())
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, driver.State())
	assert.Equal(t, 3, report.Ticks)
	assert.Equal(t, 0, report.DataErrors)

	points := driver.EquityCurve()
	require.Len(t, points, 3)
	assert.Equal(t, int64(1000), points[0].Timestamp)
	assert.Equal(t, int64(1000), points[1].Timestamp)
}

func TestDriverCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &sliceSource{snaps: []*domain.Snapshot{snapshot("100", "100.1", 1000)}}
	driver, err := NewDriver(frictionlessConfig(), newMaker(t), src, zap.NewNop())
	require.NoError(t, err)

	report, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, driver.State())
	assert.Equal(t, 0, report.Ticks)
}

// TestDriverForcedLiquidation opens a leveraged long and moves the mark so
// far that exposure breaches margin_rate*equity; the driver must close the
// position at the best bid, freeze the account and flag the run.
func TestDriverForcedLiquidation(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.InitialCash = decimal.NewFromInt(1000)
	cfg.MarginRate = d("0.5")

	strat := &oneShotStrategy{side: domain.SideBuy, qty: decimal.NewFromInt(4)}
	src := &sliceSource{snaps: []*domain.Snapshot{
		snapshot("99.9", "100", 1000),
		snapshot("151", "151.1", 2000),
		snapshot("150", "150.1", 3000),
	}}

	driver, err := NewDriver(cfg, strat, src, zap.NewNop())
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, driver.State(), "the run continues past liquidation")
	assert.True(t, report.BlownUp)
	assert.True(t, driver.Account().Frozen())
	assert.True(t, driver.Account().Position().IsZero())
	// bought 4 at 100, force-closed at 151
	assert.True(t, report.RealizedPnL.Equal(d("204")), "got %s", report.RealizedPnL)

	curve := driver.EquityCurve()
	require.Len(t, curve, 3)
	assert.True(t, curve[1].Equity.Equal(d("1204")), "got %s", curve[1].Equity)
	assert.True(t, curve[2].Equity.Equal(d("1204")), "frozen equity is all cash, got %s", curve[2].Equity)
}

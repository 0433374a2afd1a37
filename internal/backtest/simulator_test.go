package backtest

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// frictionlessConfig turns off every stochastic and pricing friction so a
// test can isolate one of them at a time.
func frictionlessConfig() config.BacktestConfig {
	cfg := config.DefaultBacktestConfig()
	cfg.FillRate = 1
	cfg.SlippageBps = decimal.Zero
	cfg.RejectionRate = 0
	cfg.MarginRate = decimal.NewFromInt(1)
	cfg.MinSpreadPct = decimal.Zero
	cfg.Fees = config.FeeSchedule{MakerRate: decimal.Zero, TakerRate: decimal.Zero}
	cfg.InitialCash = decimal.NewFromInt(10000)
	cfg.Seed = 1
	return cfg
}

func newTestSimulator(t *testing.T, cfg config.BacktestConfig) (*Simulator, *domain.AccountState) {
	t.Helper()
	acct, err := domain.NewAccountState(cfg.InitialCash)
	require.NoError(t, err)
	return NewSimulator(cfg, rand.New(rand.NewSource(cfg.Seed)), zap.NewNop()), acct
}

func snapshot(bid, ask string, ts int64) *domain.Snapshot {
	return &domain.Snapshot{
		Symbol:    "BTCUSDT",
		Timestamp: ts,
		Bids:      []domain.PriceLevel{{Price: d(bid), Quantity: d("10")}},
		Asks:      []domain.PriceLevel{{Price: d(ask), Quantity: d("10")}},
	}
}

func marketIntent(t *testing.T, side domain.Side, qty string) domain.OrderIntent {
	t.Helper()
	intent, err := domain.NewMarketIntent("BTCUSDT", side, d(qty))
	require.NoError(t, err)
	return intent
}

func limitIntent(t *testing.T, side domain.Side, qty, price string, tif domain.TimeInForce) domain.OrderIntent {
	t.Helper()
	intent, err := domain.NewLimitIntent("BTCUSDT", side, d(qty), d(price), tif)
	require.NoError(t, err)
	return intent
}

func TestExecuteMarketFill(t *testing.T) {
	sim, acct := newTestSimulator(t, frictionlessConfig())
	snap := snapshot("100", "100.1", 1000)

	out, res, err := sim.Execute(marketIntent(t, domain.SideBuy, "1"), snap, acct)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFilled, out.Kind)
	assert.True(t, out.FillPrice.Equal(d("100.1")), "buy fills at best ask, got %s", out.FillPrice)
	assert.True(t, out.Fee.IsZero())
	assert.False(t, res.Closing())
	assert.True(t, acct.Position().Equal(d("1")))
}

func TestExecuteSlippageMovesPriceAgainstTrader(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.SlippageBps = d("10") // 0.1%
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	out, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "1"), snap, acct)
	require.NoError(t, err)
	assert.True(t, out.FillPrice.Equal(d("100.2001")), "ask*1.001, got %s", out.FillPrice)

	out, _, err = sim.Execute(marketIntent(t, domain.SideSell, "1"), snap, acct)
	require.NoError(t, err)
	assert.True(t, out.FillPrice.Equal(d("99.9")), "bid*0.999, got %s", out.FillPrice)
}

func TestExecuteTakerFee(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.Fees.TakerRate = d("0.001")
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	out, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "2"), snap, acct)
	require.NoError(t, err)

	// 2 * 100.1 * 0.001
	assert.True(t, out.Fee.Equal(d("0.2002")), "got %s", out.Fee)
	assert.True(t, acct.TotalFees().Equal(d("0.2002")))
}

func TestExecuteSpreadGate(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.MinSpreadPct = d("0.01") // require a 1% spread
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	out, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "1"), snap, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, domain.RejectSpreadTooTight, out.Reason)
	assert.True(t, acct.Position().IsZero())
}

func TestExecuteSpreadGateConsumesNoRandomness(t *testing.T) {
	// a spread-gated rejection must leave the RNG stream untouched, so the
	// run that follows is identical to one without the gated intent
	wide := frictionlessConfig()
	wide.FillRate = 0.5
	wide.MinSpreadPct = d("0.01")

	gated, gatedAcct := newTestSimulator(t, wide)
	tight := snapshot("100", "100.001", 1000)
	normal := snapshot("100", "102", 2000)

	out, _, err := gated.Execute(marketIntent(t, domain.SideBuy, "1"), tight, gatedAcct)
	require.NoError(t, err)
	require.Equal(t, domain.RejectSpreadTooTight, out.Reason)

	afterGate, _, err := gated.Execute(marketIntent(t, domain.SideBuy, "1"), normal, gatedAcct)
	require.NoError(t, err)

	plain, plainAcct := newTestSimulator(t, wide)
	direct, _, err := plain.Execute(marketIntent(t, domain.SideBuy, "1"), normal, plainAcct)
	require.NoError(t, err)

	assert.Equal(t, direct.Kind, afterGate.Kind)
}

func TestExecuteRandomRejection(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.RejectionRate = 1
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	out, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "1"), snap, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, domain.RejectRandom, out.Reason)
}

func TestExecuteMarginPreCheck(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.MarginRate = d("0.5")
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	// 60 * 100.1 > 0.5 * 10000, no partial admission
	out, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "60"), snap, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, domain.RejectInsufficientMargin, out.Reason)
	assert.True(t, acct.Position().IsZero())

	// 40 * 100.1 < 5000 passes
	out, _, err = sim.Execute(marketIntent(t, domain.SideBuy, "40"), snap, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFilled, out.Kind)
}

func TestExecuteFrozenAccount(t *testing.T) {
	sim, acct := newTestSimulator(t, frictionlessConfig())
	acct.Freeze()

	out, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "1"), snapshot("100", "100.1", 1000), acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, domain.RejectAccountFrozen, out.Reason)
}

func TestExecuteAggressiveLimitFillsAtAdjustedPrice(t *testing.T) {
	sim, acct := newTestSimulator(t, frictionlessConfig())
	snap := snapshot("100", "100.1", 1000)

	// buy limit above the ask is immediately marketable
	out, _, err := sim.Execute(limitIntent(t, domain.SideBuy, "1", "101", domain.TimeInForceGTC), snap, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFilled, out.Kind)
	assert.True(t, out.FillPrice.Equal(d("100.1")), "got %s", out.FillPrice)
}

func TestExecutePassiveLimitRests(t *testing.T) {
	sim, acct := newTestSimulator(t, frictionlessConfig())
	snap := snapshot("100", "100.1", 1000)

	intent := limitIntent(t, domain.SideBuy, "1", "99", domain.TimeInForceGTC)
	out, _, err := sim.Execute(intent, snap, acct)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomePending, out.Kind)
	require.Len(t, acct.RestingOrders(), 1)
	assert.Equal(t, intent.ID, acct.RestingOrders()[0].Intent.ID)
	assert.Equal(t, int64(1000), acct.RestingOrders()[0].PlacedAt)
}

func TestExecutePassiveIOCRejected(t *testing.T) {
	sim, acct := newTestSimulator(t, frictionlessConfig())
	snap := snapshot("100", "100.1", 1000)

	out, _, err := sim.Execute(limitIntent(t, domain.SideBuy, "1", "99", domain.TimeInForceIOC), snap, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, domain.RejectNotMarketable, out.Reason)
	assert.Empty(t, acct.RestingOrders())
}

func TestEvaluateRestingFillsAtLimitWithMakerFee(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.Fees.MakerRate = d("0.0001")
	sim, acct := newTestSimulator(t, cfg)

	intent := limitIntent(t, domain.SideBuy, "1", "99", domain.TimeInForceGTC)
	ro := acct.AddResting(intent, 1000)

	out, _, err := sim.EvaluateResting(ro, snapshot("98.9", "99.1", 2000), acct)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFilled, out.Kind)
	assert.True(t, out.FillPrice.Equal(d("99")), "passive fill at the limit price, got %s", out.FillPrice)
	assert.True(t, out.Fee.Equal(d("0.0099")), "got %s", out.Fee)
	assert.Equal(t, domain.OrderFilled, ro.Status)
	assert.Empty(t, acct.RestingOrders())
}

func TestEvaluateRestingExpiry(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.FillRate = 0.5
	sim, acct := newTestSimulator(t, cfg)

	intent := limitIntent(t, domain.SideBuy, "1", "99", domain.TimeInForceGTC)
	intent.ExpiresAt = 1500
	ro := acct.AddResting(intent, 1000)

	out, _, err := sim.EvaluateResting(ro, snapshot("100", "100.1", 2000), acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExpired, out.Kind)
	assert.Equal(t, domain.OrderExpired, ro.Status)
	assert.Empty(t, acct.RestingOrders())
}

func TestEvaluateRestingMarginReject(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.MarginRate = d("0.5")
	sim, acct := newTestSimulator(t, cfg)

	intent := limitIntent(t, domain.SideBuy, "60", "99", domain.TimeInForceGTC)
	ro := acct.AddResting(intent, 1000)

	out, _, err := sim.EvaluateResting(ro, snapshot("98.9", "99.1", 2000), acct)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, domain.RejectInsufficientMargin, out.Reason)
	assert.Equal(t, domain.OrderRejected, ro.Status)
}

func TestLiquidateClosesWholePosition(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.Fees.TakerRate = d("0.001")
	sim, acct := newTestSimulator(t, cfg)

	_, err := acct.ApplyFill(domain.SideBuy, d("2"), d("100"), decimal.Zero)
	require.NoError(t, err)

	resting := limitIntent(t, domain.SideSell, "1", "105", domain.TimeInForceGTC)
	acct.AddResting(resting, 1000)

	snap := snapshot("95", "95.1", 2000)
	out, res, cancelled, err := sim.Liquidate(snap, acct)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFilled, out.Kind)
	assert.True(t, out.Liquidation)
	assert.True(t, out.FillPrice.Equal(d("95")), "whole position at best bid, got %s", out.FillPrice)
	assert.True(t, out.FillQuantity.Equal(d("2")))
	assert.True(t, res.ClosedQuantity.Equal(d("2")))

	assert.True(t, acct.Position().IsZero())
	assert.True(t, acct.Frozen())
	assert.Equal(t, []string{resting.ID}, cancelled)
	assert.Empty(t, acct.RestingOrders())
}

func TestLiquidateShortBuysAtAsk(t *testing.T) {
	sim, acct := newTestSimulator(t, frictionlessConfig())

	_, err := acct.ApplyFill(domain.SideSell, d("1"), d("100"), decimal.Zero)
	require.NoError(t, err)

	out, _, _, err := sim.Liquidate(snapshot("109.9", "110", 2000), acct)
	require.NoError(t, err)
	assert.True(t, out.FillPrice.Equal(d("110")))
	assert.True(t, acct.Position().IsZero())
	assert.True(t, acct.RealizedPnL().Equal(d("-10")))
}

func TestFillRateConvergence(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.FillRate = 0.7
	cfg.Seed = 42
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	const n = 10000
	filled := 0
	for i := 0; i < n; i++ {
		// alternate sides so the position stays near flat
		side := domain.SideBuy
		if i%2 == 1 {
			side = domain.SideSell
		}
		out, _, err := sim.Execute(marketIntent(t, side, "0.0001"), snap, acct)
		require.NoError(t, err)
		if out.Kind == domain.OutcomeFilled {
			filled++
		}
	}

	assert.InDelta(t, 0.7, float64(filled)/n, 0.015)
}

func TestSimulatorDeterminism(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.FillRate = 0.5
	cfg.RejectionRate = 0.1
	cfg.Seed = 7

	run := func() []domain.OutcomeKind {
		sim, acct := newTestSimulator(t, cfg)
		snap := snapshot("100", "100.1", 1000)
		kinds := make([]domain.OutcomeKind, 0, 100)
		for i := 0; i < 100; i++ {
			side := domain.SideBuy
			if i%2 == 1 {
				side = domain.SideSell
			}
			out, _, err := sim.Execute(marketIntent(t, side, "0.001"), snap, acct)
			require.NoError(t, err)
			kinds = append(kinds, out.Kind)
		}
		return kinds
	}

	assert.Equal(t, run(), run())
}

func TestExecutionStats(t *testing.T) {
	cfg := frictionlessConfig()
	sim, acct := newTestSimulator(t, cfg)
	snap := snapshot("100", "100.1", 1000)

	_, _, err := sim.Execute(marketIntent(t, domain.SideBuy, "1"), snap, acct)
	require.NoError(t, err)
	_, _, err = sim.Execute(limitIntent(t, domain.SideBuy, "1", "99", domain.TimeInForceGTC), snap, acct)
	require.NoError(t, err)

	stats := sim.Stats()
	assert.Equal(t, 2, stats.TotalIntents)
	assert.Equal(t, 1, stats.Filled)
	assert.Equal(t, 1, stats.Resting)
}

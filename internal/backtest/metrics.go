package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lobsim/internal/domain"
)

// EquityPoint is one timestamped performance sample. Appended once per tick,
// immutable thereafter, timestamps non-decreasing: a poller can deliver two
// snapshots carrying the same book timestamp and both ticks are kept.
type EquityPoint struct {
	Timestamp  int64
	Equity     decimal.Decimal
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	// Drawdown peak-to-current decline as a fraction of the running peak.
	Drawdown decimal.Decimal
}

// Report is the finalized result of a run, plain data for external renderers.
type Report struct {
	TotalPnL      decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	MaxDrawdown   decimal.Decimal
	TotalFees     decimal.Decimal
	AvgWin        decimal.Decimal
	AvgLoss       decimal.Decimal

	// Sharpe is mean(tick_return)/stdev(tick_return)*sqrt(annualization).
	// SharpeDefined is false when the return stdev is zero or there are
	// fewer than two returns; Sharpe is then meaningless, not infinite.
	Sharpe        float64
	SharpeDefined bool
	WinRate       float64
	ProfitFactor  float64

	TradeCount    int
	WinningTrades int
	LosingTrades  int
	Ticks         int
	DataErrors    int
	BlownUp       bool
}

// Collector accumulates the equity time series and per-fill statistics and
// derives the summary report at run end.
type Collector struct {
	points     []EquityPoint
	peak       decimal.Decimal
	maxDD      decimal.Decimal
	closes     []decimal.Decimal // realized deltas of closing fills
	tradeCount int
	dataErrors int
	blownUp    bool
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{peak: decimal.Zero, maxDD: decimal.Zero}
}

// Record appends one equity point sampled after mark-to-market.
func (c *Collector) Record(ts int64, equity, realized, unrealized decimal.Decimal) {
	if equity.GreaterThan(c.peak) {
		c.peak = equity
	}

	dd := decimal.Zero
	if c.peak.GreaterThan(decimal.Zero) {
		dd = c.peak.Sub(equity).Div(c.peak)
	}
	if dd.GreaterThan(c.maxDD) {
		c.maxDD = dd
	}

	c.points = append(c.points, EquityPoint{
		Timestamp:  ts,
		Equity:     equity,
		Realized:   realized,
		Unrealized: unrealized,
		Drawdown:   dd,
	})
}

// RecordFill counts one executed fill; closing fills feed the win/loss stats.
func (c *Collector) RecordFill(res domain.FillResult) {
	c.tradeCount++
	if res.Closing() {
		c.closes = append(c.closes, res.RealizedDelta)
	}
}

// RecordDataError counts one skipped malformed snapshot.
func (c *Collector) RecordDataError() {
	c.dataErrors++
}

// SetBlownUp flags that forced liquidation occurred.
func (c *Collector) SetBlownUp() {
	c.blownUp = true
}

// Points returns the equity series in tick order.
func (c *Collector) Points() []EquityPoint {
	return c.points
}

// Finalize derives the summary report from the accumulated series.
func (c *Collector) Finalize(acct *domain.AccountState, annualization float64) Report {
	r := Report{
		RealizedPnL:   acct.RealizedPnL(),
		UnrealizedPnL: acct.UnrealizedPnL(),
		TotalPnL:      acct.RealizedPnL().Add(acct.UnrealizedPnL()),
		TotalFees:     acct.TotalFees(),
		MaxDrawdown:   c.maxDD,
		TradeCount:    c.tradeCount,
		Ticks:         len(c.points),
		DataErrors:    c.dataErrors,
		BlownUp:       c.blownUp,
		AvgWin:        decimal.Zero,
		AvgLoss:       decimal.Zero,
	}

	winSum, lossSum := decimal.Zero, decimal.Zero
	for _, pnl := range c.closes {
		if pnl.GreaterThan(decimal.Zero) {
			r.WinningTrades++
			winSum = winSum.Add(pnl)
		} else if pnl.LessThan(decimal.Zero) {
			r.LosingTrades++
			lossSum = lossSum.Add(pnl.Abs())
		}
	}
	if len(c.closes) > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(len(c.closes))
	}
	if r.WinningTrades > 0 {
		r.AvgWin = winSum.Div(decimal.NewFromInt(int64(r.WinningTrades)))
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(r.LosingTrades)))
	}
	if lossSum.GreaterThan(decimal.Zero) {
		pf, _ := winSum.Div(lossSum).Float64()
		r.ProfitFactor = pf
	}

	r.Sharpe, r.SharpeDefined = c.sharpe(annualization)

	return r
}

// sharpe computes the annualized Sharpe ratio over per-tick equity returns.
// A zero standard deviation yields (0, false) instead of a division by zero.
func (c *Collector) sharpe(annualization float64) (float64, bool) {
	if len(c.points) < 3 {
		return 0, false
	}

	returns := make([]float64, 0, len(c.points)-1)
	for i := 1; i < len(c.points); i++ {
		prev, _ := c.points[i-1].Equity.Float64()
		cur, _ := c.points[i].Equity.Float64()
		if prev == 0 {
			return 0, false
		}
		returns = append(returns, (cur-prev)/prev)
	}

	mean := 0.0
	for _, ret := range returns {
		mean += ret
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, ret := range returns {
		variance += (ret - mean) * (ret - mean)
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0, false
	}

	return mean / std * math.Sqrt(annualization), true
}

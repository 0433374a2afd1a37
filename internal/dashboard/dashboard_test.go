package dashboard

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/lobsim/internal/backtest"
)

func sampleReport() backtest.Report {
	return backtest.Report{
		TotalPnL:      decimal.RequireFromString("12.5"),
		RealizedPnL:   decimal.RequireFromString("10"),
		UnrealizedPnL: decimal.RequireFromString("2.5"),
		MaxDrawdown:   decimal.RequireFromString("0.05"),
		TotalFees:     decimal.RequireFromString("1.2"),
		Sharpe:        1.8,
		SharpeDefined: true,
		WinRate:       0.6,
		TradeCount:    20,
		WinningTrades: 6,
		LosingTrades:  4,
		Ticks:         500,
	}
}

func points(equities ...string) []backtest.EquityPoint {
	out := make([]backtest.EquityPoint, len(equities))
	for i, eq := range equities {
		out[i] = backtest.EquityPoint{
			Timestamp: int64(1000 + i),
			Equity:    decimal.RequireFromString(eq),
		}
	}
	return out
}

func TestRenderContainsAllSections(t *testing.T) {
	out := Render("BTCUSDT", sampleReport(), points("100", "105", "101", "110"))

	for _, want := range []string{
		"BTCUSDT",
		"PERFORMANCE",
		"Total PnL",
		"RISK",
		"Max Drawdown",
		"TRADES",
		"Win Rate",
		"RUN",
		"EQUITY",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q", want)
	}
}

func TestRenderUndefinedSharpe(t *testing.T) {
	report := sampleReport()
	report.SharpeDefined = false
	report.LosingTrades = 0

	out := Render("BTCUSDT", report, nil)
	assert.Contains(t, out, "n/a")
	assert.NotContains(t, out, "EQUITY", "no chart without points")
}

func TestRenderBlownUp(t *testing.T) {
	report := sampleReport()
	report.BlownUp = true

	out := Render("BTCUSDT", report, nil)
	assert.Contains(t, out, "LIQUIDATED")
}

func TestDownsampleKeepsEndpoints(t *testing.T) {
	pts := points("100", "101", "102", "103", "104", "105", "106", "107", "108", "109")

	sampled := downsample(pts, 5)
	assert.Len(t, sampled, 5)
	assert.Equal(t, 100.0, sampled[0])
	assert.Equal(t, 109.0, sampled[4])
}

// Package dashboard renders a finished run's report as styled terminal
// output.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lobsim/internal/backtest"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	good      = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	bad       = lipgloss.AdaptiveColor{Light: "#D94C4C", Dark: "#F47D7D"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(0, 2).
			Bold(true).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(good).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Width(18)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1)

	profitStyle = lipgloss.NewStyle().Foreground(good).Bold(true)
	lossStyle   = lipgloss.NewStyle().Foreground(bad).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(bad).Bold(true).Blink(false)
)

// sparklineWidth is the number of columns in the equity chart.
const sparklineWidth = 60

// Render formats the report as a multi-section terminal dashboard.
func Render(symbol string, report backtest.Report, points []backtest.EquityPoint) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("BACKTEST REPORT  %s", symbol)))
	b.WriteString("\n")

	if report.BlownUp {
		b.WriteString(warnStyle.Render("!! ACCOUNT LIQUIDATED, results below are partial !!"))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("PERFORMANCE"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join([]string{
		row("Total PnL", signed(report.TotalPnL)),
		row("Realized PnL", signed(report.RealizedPnL)),
		row("Unrealized PnL", signed(report.UnrealizedPnL)),
		row("Total Fees", report.TotalFees.String()),
	}, "\n")))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("RISK"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join([]string{
		row("Max Drawdown", fmt.Sprintf("%s%%", report.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2))),
		row("Sharpe", sharpeText(report)),
	}, "\n")))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("TRADES"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join([]string{
		row("Fills", fmt.Sprintf("%d", report.TradeCount)),
		row("Win Rate", fmt.Sprintf("%.1f%%", report.WinRate*100)),
		row("Winners / Losers", fmt.Sprintf("%d / %d", report.WinningTrades, report.LosingTrades)),
		row("Avg Win", report.AvgWin.StringFixed(6)),
		row("Avg Loss", report.AvgLoss.StringFixed(6)),
		row("Profit Factor", profitFactorText(report)),
	}, "\n")))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("RUN"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join([]string{
		row("Ticks", fmt.Sprintf("%d", report.Ticks)),
		row("Data Errors", fmt.Sprintf("%d", report.DataErrors)),
	}, "\n")))
	b.WriteString("\n")

	if chart := sparkline(points); chart != "" {
		b.WriteString(sectionStyle.Render("EQUITY"))
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(chart))
		b.WriteString("\n")
	}

	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(6)
	if d.IsNegative() {
		return lossStyle.Render(s)
	}
	return profitStyle.Render("+" + s)
}

func sharpeText(r backtest.Report) string {
	if !r.SharpeDefined {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", r.Sharpe)
}

func profitFactorText(r backtest.Report) string {
	if r.LosingTrades == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", r.ProfitFactor)
}

// sparkline draws the equity curve with unicode block characters, downsampled
// to a fixed width.
func sparkline(points []backtest.EquityPoint) string {
	if len(points) < 2 {
		return ""
	}

	blocks := []rune("▁▂▃▄▅▆▇█")

	sampled := downsample(points, sparklineWidth)

	min, max := sampled[0], sampled[0]
	for _, v := range sampled[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	span := max - min
	for _, v := range sampled {
		idx := 0
		if span > 0 {
			idx = int((v - min) / span * float64(len(blocks)-1))
		}
		b.WriteRune(blocks[idx])
	}
	b.WriteString(fmt.Sprintf("\nlow %.2f  high %.2f", min, max))
	return b.String()
}

func downsample(points []backtest.EquityPoint, width int) []float64 {
	if len(points) <= width {
		out := make([]float64, len(points))
		for i, p := range points {
			out[i], _ = p.Equity.Float64()
		}
		return out
	}

	out := make([]float64, width)
	for i := 0; i < width; i++ {
		p := points[i*(len(points)-1)/(width-1)]
		out[i], _ = p.Equity.Float64()
	}
	return out
}

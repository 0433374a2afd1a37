// Package indicators provides the rolling market statistics used by the
// strategies: EMA, per-tick return volatility and momentum.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/shopspring/decimal"
)

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := helper.ChanToSlice(ema.Compute(helper.SliceToChan(decimalsToFloat64(closes))))

	return float64ToDecimals(out), nil
}

// ReturnVolatility returns the moving standard deviation of per-tick returns
// of the price series over the given period; the latest window's value.
func ReturnVolatility(prices []float64, period int) (float64, error) {
	if period < 2 {
		return 0, fmt.Errorf("volatility period must be at least 2, got %d", period)
	}
	if len(prices) < period+1 {
		return 0, fmt.Errorf("not enough data points: need %d, got %d", period+1, len(prices))
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}

	std := volatility.NewMovingStdWithPeriod[float64](period)
	out := helper.ChanToSlice(std.Compute(helper.SliceToChan(returns)))
	if len(out) == 0 {
		return 0, fmt.Errorf("no volatility output for %d returns", len(returns))
	}

	return out[len(out)-1], nil
}

// Momentum returns the total fractional price change over the series.
func Momentum(prices []float64) float64 {
	if len(prices) < 2 || prices[0] == 0 {
		return 0
	}
	return (prices[len(prices)-1] - prices[0]) / prices[0]
}

func decimalsToFloat64(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i], _ = v.Float64()
	}
	return out
}

func float64ToDecimals(values []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

package indicators

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimals(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestCalculateEMA(t *testing.T) {
	closes := decimals(100, 101, 102, 103, 104, 105, 106, 107)

	ema, err := CalculateEMA(closes, 3)
	require.NoError(t, err)
	require.NotEmpty(t, ema)

	// the EMA of a rising series trails the last price but rises with it
	last, _ := ema[len(ema)-1].Float64()
	assert.Greater(t, last, 100.0)
	assert.LessOrEqual(t, last, 107.0)
}

func TestCalculateEMAInsufficientData(t *testing.T) {
	_, err := CalculateEMA(decimals(100, 101), 5)
	require.Error(t, err)
}

func TestReturnVolatilityConstantSeries(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 100}

	vol, err := ReturnVolatility(prices, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0, vol, 1e-12)
}

func TestReturnVolatilitySwingsExceedCalm(t *testing.T) {
	calm := []float64{100, 100.01, 100.02, 100.01, 100.02, 100.03}
	wild := []float64{100, 103, 99, 104, 98, 105}

	calmVol, err := ReturnVolatility(calm, 3)
	require.NoError(t, err)
	wildVol, err := ReturnVolatility(wild, 3)
	require.NoError(t, err)

	assert.Greater(t, wildVol, calmVol)
}

func TestReturnVolatilityValidation(t *testing.T) {
	_, err := ReturnVolatility([]float64{100, 101, 102}, 1)
	require.Error(t, err)

	_, err = ReturnVolatility([]float64{100, 101}, 3)
	require.Error(t, err)
}

func TestMomentum(t *testing.T) {
	assert.InDelta(t, 0.01, Momentum([]float64{100, 100.5, 101}), 1e-12)
	assert.InDelta(t, -0.01, Momentum([]float64{100, 99.5, 99}), 1e-12)
	assert.Zero(t, Momentum([]float64{100}))
	assert.Zero(t, Momentum(nil))
}

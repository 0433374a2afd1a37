package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSide(t *testing.T) {
	assert.Equal(t, "buy", SideBuy.String())
	assert.Equal(t, "sell", SideSell.String())
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
	assert.True(t, SideBuy.Sign().Equal(decimal.NewFromInt(1)))
	assert.True(t, SideSell.Sign().Equal(decimal.NewFromInt(-1)))
}

func TestNewLimitIntent(t *testing.T) {
	intent, err := NewLimitIntent("BTCUSDT", SideBuy, d("0.5"), d("100"), TimeInForceGTC)
	require.NoError(t, err)

	assert.NotEmpty(t, intent.ID)
	assert.Equal(t, "BTCUSDT", intent.Symbol)
	assert.False(t, intent.Marketable)
	assert.Equal(t, TimeInForceGTC, intent.TIF)
	assert.True(t, intent.LimitPrice.Equal(d("100")))

	other, err := NewLimitIntent("BTCUSDT", SideBuy, d("0.5"), d("100"), TimeInForceGTC)
	require.NoError(t, err)
	assert.NotEqual(t, intent.ID, other.ID)
}

func TestNewLimitIntentValidation(t *testing.T) {
	_, err := NewLimitIntent("BTCUSDT", SideBuy, decimal.Zero, d("100"), TimeInForceGTC)
	require.Error(t, err)

	_, err = NewLimitIntent("BTCUSDT", SideBuy, d("1"), decimal.Zero, TimeInForceGTC)
	require.Error(t, err)

	_, err = NewLimitIntent("BTCUSDT", SideBuy, d("-1"), d("100"), TimeInForceGTC)
	require.Error(t, err)
}

func TestNewMarketIntentAlwaysIOC(t *testing.T) {
	intent, err := NewMarketIntent("BTCUSDT", SideSell, d("1"))
	require.NoError(t, err)

	assert.True(t, intent.Marketable)
	assert.Equal(t, TimeInForceIOC, intent.TIF)

	_, err = NewMarketIntent("BTCUSDT", SideSell, decimal.Zero)
	require.Error(t, err)
}

func TestRestingOrderExpired(t *testing.T) {
	intent, err := NewLimitIntent("BTCUSDT", SideBuy, d("1"), d("100"), TimeInForceGTC)
	require.NoError(t, err)
	intent.ExpiresAt = 5000

	ro := &RestingOrder{Intent: intent, Status: OrderPending, PlacedAt: 1000}
	assert.False(t, ro.Expired(4999))
	assert.True(t, ro.Expired(5000))

	intent.ExpiresAt = 0
	noExpiry := &RestingOrder{Intent: intent, Status: OrderPending, PlacedAt: 1000}
	assert.False(t, noExpiry.Expired(1<<60))
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderPending.Terminal())
	for _, s := range []OrderStatus{OrderFilled, OrderRejected, OrderCancelled, OrderExpired} {
		assert.True(t, s.Terminal(), s.String())
	}
}

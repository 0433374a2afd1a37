package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	// SideBuy buys the base asset.
	SideBuy Side = iota
	// SideSell sells the base asset.
	SideSell
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Sign returns +1 for buys and -1 for sells as a decimal.
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TimeInForce controls whether an unfilled intent may rest on the book.
type TimeInForce int

const (
	// TimeInForceGTC rests until filled, cancelled or expired.
	TimeInForceGTC TimeInForce = iota
	// TimeInForceIOC fills immediately or is rejected.
	TimeInForceIOC
	// TimeInForceFOK fills in full immediately or is rejected.
	TimeInForceFOK
)

// String returns the string representation of the time-in-force.
func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGTC:
		return "GTC"
	case TimeInForceIOC:
		return "IOC"
	case TimeInForceFOK:
		return "FOK"
	default:
		return "unknown"
	}
}

// OrderIntent is a strategy's requested action for one tick. It is created
// by the strategy and consumed exactly once by the simulator.
type OrderIntent struct {
	// ID strategy-visible identifier, assigned at construction.
	ID string
	// Symbol trading symbol the intent targets.
	Symbol string
	// Side buy or sell.
	Side Side
	// Quantity base asset quantity, always positive.
	Quantity decimal.Decimal
	// LimitPrice requested price. Zero for marketable intents.
	LimitPrice decimal.Decimal
	// Marketable true for market orders filled at the opposite best price.
	Marketable bool
	// TIF time-in-force policy.
	TIF TimeInForce
	// ExpiresAt epoch milliseconds after which a resting order expires.
	// Zero means no expiry.
	ExpiresAt int64
}

// NewLimitIntent constructs a validated limit order intent.
func NewLimitIntent(symbol string, side Side, quantity, limitPrice decimal.Decimal, tif TimeInForce) (OrderIntent, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return OrderIntent{}, errors.New("order quantity must be greater than zero")
	}
	if limitPrice.LessThanOrEqual(decimal.Zero) {
		return OrderIntent{}, errors.New("limit price must be greater than zero")
	}

	return OrderIntent{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		TIF:        tif,
	}, nil
}

// NewMarketIntent constructs a validated marketable intent. Market orders
// are always immediate-or-cancel.
func NewMarketIntent(symbol string, side Side, quantity decimal.Decimal) (OrderIntent, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return OrderIntent{}, errors.New("order quantity must be greater than zero")
	}

	return OrderIntent{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Marketable: true,
		TIF:        TimeInForceIOC,
	}, nil
}

// String returns a human-readable representation.
func (o *OrderIntent) String() string {
	kind := "limit @ " + o.LimitPrice.String()
	if o.Marketable {
		kind = "market"
	}
	return fmt.Sprintf("%s %s %s %s (%s)", o.Side, o.Quantity.String(), o.Symbol, kind, o.TIF)
}

// Package domain defines the core value types of the backtest engine:
// order book snapshots, order intents, execution outcomes and the
// account ledger.
package domain

import (
	"github.com/shopspring/decimal"
)

// imbalanceDepth is the number of top levels summed for the imbalance metric.
const imbalanceDepth = 5

// PriceLevel is one resting price/quantity level of an order book side.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Snapshot is one observed order book state. It is immutable: the tick that
// processes it is its sole owner and nothing mutates it after construction.
type Snapshot struct {
	// Symbol trading symbol, e.g. BTCUSDT.
	Symbol string
	// Timestamp exchange timestamp of the book state, epoch milliseconds.
	Timestamp int64
	// FetchTime local time the snapshot was captured, epoch milliseconds.
	FetchTime int64
	// UpdateID exchange-assigned book revision.
	UpdateID int64
	// Bids buy levels ordered by price descending.
	Bids []PriceLevel
	// Asks sell levels ordered by price ascending.
	Asks []PriceLevel
}

// BestBid returns the top bid level. The second return value is false when
// the bid side is empty.
func (s *Snapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level. The second return value is false when
// the ask side is empty.
func (s *Snapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Mid returns the mid price, zero when either side is empty.
func (s *Snapshot) Mid() decimal.Decimal {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}

// SpreadAbs returns best ask minus best bid, zero when either side is empty.
func (s *Snapshot) SpreadAbs() decimal.Decimal {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// SpreadPct returns the spread as a fraction of the mid price.
func (s *Snapshot) SpreadPct() decimal.Decimal {
	mid := s.Mid()
	if mid.IsZero() {
		return decimal.Zero
	}
	return s.SpreadAbs().Div(mid)
}

// Imbalance returns (bidVol-askVol)/(bidVol+askVol) over the top five levels.
// Positive values mean buy pressure.
func (s *Snapshot) Imbalance() decimal.Decimal {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return decimal.Zero
	}

	bidVol := sumQuantities(s.Bids, imbalanceDepth)
	askVol := sumQuantities(s.Asks, imbalanceDepth)

	total := bidVol.Add(askVol)
	if total.IsZero() {
		return decimal.Zero
	}

	return bidVol.Sub(askVol).Div(total)
}

func sumQuantities(levels []PriceLevel, depth int) decimal.Decimal {
	sum := decimal.Zero
	for i, lvl := range levels {
		if i >= depth {
			break
		}
		sum = sum.Add(lvl.Quantity)
	}
	return sum
}

// Validate checks the snapshot is usable for order admission. A book with an
// empty side or crossed beyond crossTolerance (fraction of mid, e.g. 0.001)
// yields a DataError.
func (s *Snapshot) Validate(crossTolerance decimal.Decimal) error {
	if len(s.Bids) == 0 {
		return NewDataError("snapshot %s@%d: empty bid side", s.Symbol, s.Timestamp)
	}
	if len(s.Asks) == 0 {
		return NewDataError("snapshot %s@%d: empty ask side", s.Symbol, s.Timestamp)
	}

	bid := s.Bids[0].Price
	ask := s.Asks[0].Price
	if bid.LessThanOrEqual(ask) {
		return nil
	}

	mid := s.Mid()
	if mid.IsZero() {
		return NewDataError("snapshot %s@%d: zero mid price", s.Symbol, s.Timestamp)
	}
	crossed := bid.Sub(ask).Div(mid)
	if crossed.GreaterThan(crossTolerance) {
		return NewDataError("snapshot %s@%d: book crossed by %s (tolerance %s)",
			s.Symbol, s.Timestamp, crossed.String(), crossTolerance.String())
	}

	return nil
}

package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FillResult summarizes the ledger effect of applying one fill.
type FillResult struct {
	// ClosedQuantity quantity that reduced existing exposure.
	ClosedQuantity decimal.Decimal
	// RealizedDelta realized PnL contribution of this fill, net of fee.
	RealizedDelta decimal.Decimal
}

// Closing reports whether the fill reduced existing exposure.
func (r FillResult) Closing() bool {
	return r.ClosedQuantity.GreaterThan(decimal.Zero)
}

// AccountState is the running ledger for one simulated trader. It is mutated
// exclusively by applying fill outcomes and mark-to-market; strategies only
// get read access. All money math is decimal so the accounting identity
//
//	cash + position*mid == initialCash + realizedPnL + unrealizedPnL
//
// holds exactly after every mutation (realized PnL is net of fees).
type AccountState struct {
	cash          decimal.Decimal
	position      decimal.Decimal // signed base quantity, negative for shorts
	costBasis     decimal.Decimal // total notional paid (long) or received (short) for the open position
	realizedPnL   decimal.Decimal
	unrealizedPnL decimal.Decimal
	lastMid       decimal.Decimal
	initialCash   decimal.Decimal
	totalFees     decimal.Decimal
	frozen        bool

	resting    []*RestingOrder
	restingIdx map[string]*RestingOrder
}

// NewAccountState initializes the ledger with the given starting cash.
func NewAccountState(initialCash decimal.Decimal) (*AccountState, error) {
	if initialCash.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("initial cash must be greater than zero")
	}

	return &AccountState{
		cash:        initialCash,
		initialCash: initialCash,
		restingIdx:  make(map[string]*RestingOrder),
	}, nil
}

// Cash returns the current cash balance.
func (a *AccountState) Cash() decimal.Decimal { return a.cash }

// Position returns the signed position quantity.
func (a *AccountState) Position() decimal.Decimal { return a.position }

// AvgEntryPrice returns the weighted-average entry price of the open
// position, derived from the cost basis. Zero when flat. The ledger never
// computes with this rounded view; the cost basis itself stays exact.
func (a *AccountState) AvgEntryPrice() decimal.Decimal {
	if a.position.IsZero() {
		return decimal.Zero
	}
	return a.costBasis.Div(a.position.Abs())
}

// RealizedPnL returns realized profit and loss net of fees.
func (a *AccountState) RealizedPnL() decimal.Decimal { return a.realizedPnL }

// UnrealizedPnL returns the open position PnL at the last mark price.
func (a *AccountState) UnrealizedPnL() decimal.Decimal { return a.unrealizedPnL }

// InitialCash returns the starting cash balance.
func (a *AccountState) InitialCash() decimal.Decimal { return a.initialCash }

// TotalFees returns the cumulative fees paid.
func (a *AccountState) TotalFees() decimal.Decimal { return a.totalFees }

// LastMid returns the last mark price.
func (a *AccountState) LastMid() decimal.Decimal { return a.lastMid }

// Frozen reports whether the account stopped accepting intents after a
// forced liquidation.
func (a *AccountState) Frozen() bool { return a.frozen }

// Equity returns cash plus the position valued at the last mark price.
func (a *AccountState) Equity() decimal.Decimal {
	return a.cash.Add(a.position.Mul(a.lastMid))
}

// MarginUsed returns the absolute position exposure at the last mark price.
func (a *AccountState) MarginUsed() decimal.Decimal {
	return a.position.Abs().Mul(a.lastMid)
}

// MarkToMarket recomputes unrealized PnL and equity at the given mid price
// without touching cash or position.
func (a *AccountState) MarkToMarket(mid decimal.Decimal) {
	a.lastMid = mid
	a.remark()
}

func (a *AccountState) remark() {
	if a.position.IsZero() {
		a.unrealizedPnL = decimal.Zero
		return
	}
	if a.position.IsPositive() {
		a.unrealizedPnL = a.position.Mul(a.lastMid).Sub(a.costBasis)
		return
	}
	a.unrealizedPnL = a.costBasis.Sub(a.position.Abs().Mul(a.lastMid))
}

// Freeze stops the account from accepting further intents.
func (a *AccountState) Freeze() {
	a.frozen = true
}

// ApplyFill folds one fill into the ledger using weighted-average-cost
// accounting. The ledger carries the position's total cost basis rather than
// a rounded average price: opening fills add their exact notional, reducing
// fills remove a pro-rata share and realize proceeds minus that share, so
// removed plus remaining cost always sums to the basis and the accounting
// identity stays exact. On a crossing fill only the unclosed remainder opens
// a new position at the fill price.
func (a *AccountState) ApplyFill(side Side, quantity, price, fee decimal.Decimal) (FillResult, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return FillResult{}, errors.New("fill quantity must be greater than zero")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return FillResult{}, errors.New("fill price must be greater than zero")
	}

	signedQty := side.Sign().Mul(quantity)

	// cash moves by the full notional regardless of open/close direction
	a.cash = a.cash.Sub(signedQty.Mul(price)).Sub(fee)
	a.totalFees = a.totalFees.Add(fee)
	a.realizedPnL = a.realizedPnL.Sub(fee)

	res := FillResult{RealizedDelta: fee.Neg()}

	switch {
	case a.position.IsZero() || a.position.Sign() == signedQty.Sign():
		// opening or adding: the fill notional joins the basis as-is
		a.costBasis = a.costBasis.Add(quantity.Mul(price))
		a.position = a.position.Add(signedQty)

	default:
		held := a.position.Abs()
		closed := decimal.Min(quantity, held)

		// pro-rata cost of the closed share; the rounding remainder stays
		// in the basis so removed + remaining always equals the old basis
		removed := a.costBasis
		if closed.LessThan(held) {
			removed = a.costBasis.Mul(closed).Div(held)
		}
		a.costBasis = a.costBasis.Sub(removed)

		gross := closed.Mul(price).Sub(removed)
		if a.position.IsNegative() {
			gross = gross.Neg()
		}

		a.realizedPnL = a.realizedPnL.Add(gross)
		res.ClosedQuantity = closed
		res.RealizedDelta = res.RealizedDelta.Add(gross)

		a.position = a.position.Add(signedQty)
		remainder := quantity.Sub(closed)
		if remainder.GreaterThan(decimal.Zero) {
			// position flipped: the remainder opens at the fill price
			a.costBasis = remainder.Mul(price)
		}
	}

	a.remark()
	return res, nil
}

// AddResting appends a pending order to the resting collection.
func (a *AccountState) AddResting(intent OrderIntent, placedAt int64) *RestingOrder {
	ro := &RestingOrder{Intent: intent, Status: OrderPending, PlacedAt: placedAt}
	a.resting = append(a.resting, ro)
	a.restingIdx[intent.ID] = ro
	return ro
}

// RestingOrders returns the pending orders in placement order.
func (a *AccountState) RestingOrders() []*RestingOrder {
	out := make([]*RestingOrder, 0, len(a.resting))
	for _, ro := range a.resting {
		if ro.Status == OrderPending {
			out = append(out, ro)
		}
	}
	return out
}

// RestingOrder returns the resting order with the given id, nil when absent.
func (a *AccountState) RestingOrder(id string) *RestingOrder {
	return a.restingIdx[id]
}

// SettleResting moves a pending order to a terminal status and drops it from
// the active set. Terminal orders keep their entry in the index for lookups.
func (a *AccountState) SettleResting(id string, status OrderStatus) {
	ro, ok := a.restingIdx[id]
	if !ok || ro.Status.Terminal() {
		return
	}
	ro.Status = status

	kept := a.resting[:0]
	for _, r := range a.resting {
		if r.Status == OrderPending {
			kept = append(kept, r)
		}
	}
	a.resting = kept
}

// CancelAllResting marks every pending order cancelled and returns their ids.
func (a *AccountState) CancelAllResting() []string {
	ids := make([]string, 0, len(a.resting))
	for _, ro := range a.resting {
		if ro.Status == OrderPending {
			ro.Status = OrderCancelled
			ids = append(ids, ro.Intent.ID)
		}
	}
	a.resting = a.resting[:0]
	return ids
}

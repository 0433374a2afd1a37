package domain

import "github.com/shopspring/decimal"

// OutcomeKind classifies the result of simulating one order intent.
type OutcomeKind int

const (
	// OutcomeFilled the intent executed for its full quantity.
	OutcomeFilled OutcomeKind = iota
	// OutcomePending the intent rests on the book and is re-evaluated
	// against each subsequent snapshot.
	OutcomePending
	// OutcomeRejected the intent was discarded without execution.
	OutcomeRejected
	// OutcomeExpired a resting order passed its expiry time.
	OutcomeExpired
	// OutcomeCancelled a resting order was cancelled (account freeze).
	OutcomeCancelled
)

// String returns the string representation of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFilled:
		return "filled"
	case OutcomePending:
		return "pending"
	case OutcomeRejected:
		return "rejected"
	case OutcomeExpired:
		return "expired"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RejectReason explains why an intent was rejected.
type RejectReason int

const (
	// RejectNone no rejection occurred.
	RejectNone RejectReason = iota
	// RejectSpreadTooTight the snapshot spread is below the configured minimum.
	RejectSpreadTooTight
	// RejectRandom the stochastic rejection draw fired.
	RejectRandom
	// RejectInsufficientMargin a full fill would exceed the margin limit.
	RejectInsufficientMargin
	// RejectNotMarketable a non-resting limit intent was not immediately executable.
	RejectNotMarketable
	// RejectNoFill the fill draw failed for an immediate-or-cancel intent.
	RejectNoFill
	// RejectAccountFrozen the account is frozen after forced liquidation.
	RejectAccountFrozen
)

// String returns the string representation of the rejection reason.
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectSpreadTooTight:
		return "spread_too_tight"
	case RejectRandom:
		return "random_rejection"
	case RejectInsufficientMargin:
		return "insufficient_margin"
	case RejectNotMarketable:
		return "not_marketable"
	case RejectNoFill:
		return "no_fill"
	case RejectAccountFrozen:
		return "account_frozen"
	default:
		return "unknown"
	}
}

// Outcome is the result of simulating one intent against one snapshot. It is
// owned by the tick that produced it until folded into the account and metrics.
type Outcome struct {
	// OrderID id of the intent the outcome belongs to.
	OrderID string
	// Kind filled, pending, rejected, expired or cancelled.
	Kind OutcomeKind
	// FillPrice execution price, set only when Kind is OutcomeFilled.
	FillPrice decimal.Decimal
	// FillQuantity executed quantity, never exceeds the intent quantity.
	FillQuantity decimal.Decimal
	// Fee quote-denominated fee deducted from cash.
	Fee decimal.Decimal
	// Reason rejection reason, RejectNone unless Kind is OutcomeRejected.
	Reason RejectReason
	// Liquidation true for the synthetic fill of a forced liquidation.
	Liquidation bool
}

// FilledOutcome builds a full-fill outcome.
func FilledOutcome(orderID string, price, quantity, fee decimal.Decimal) Outcome {
	return Outcome{
		OrderID:      orderID,
		Kind:         OutcomeFilled,
		FillPrice:    price,
		FillQuantity: quantity,
		Fee:          fee,
	}
}

// PendingOutcome builds an outcome for an intent left resting on the book.
func PendingOutcome(orderID string) Outcome {
	return Outcome{OrderID: orderID, Kind: OutcomePending}
}

// RejectedOutcome builds a rejection outcome.
func RejectedOutcome(orderID string, reason RejectReason) Outcome {
	return Outcome{OrderID: orderID, Kind: OutcomeRejected, Reason: reason}
}

// FillEvent is the journal record of one executed fill.
type FillEvent struct {
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Timestamp   int64           `json:"timestamp"`
	Side        string          `json:"side"`
	Price       string          `json:"price"`
	Quantity    string          `json:"quantity"`
	Fee         string          `json:"fee"`
	Realized    string          `json:"realized"`
	Liquidation bool            `json:"liquidation,omitempty"`
}

// NewFillEvent builds a journal record from a fill outcome.
func NewFillEvent(symbol string, ts int64, side Side, out Outcome, realized decimal.Decimal) FillEvent {
	return FillEvent{
		OrderID:     out.OrderID,
		Symbol:      symbol,
		Timestamp:   ts,
		Side:        side.String(),
		Price:       out.FillPrice.String(),
		Quantity:    out.FillQuantity.String(),
		Fee:         out.Fee.String(),
		Realized:    realized.String(),
		Liquidation: out.Liquidation,
	}
}

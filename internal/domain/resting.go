package domain

// OrderStatus is the lifecycle state of a resting order.
type OrderStatus int

const (
	// OrderPending the order rests and is re-evaluated every tick.
	OrderPending OrderStatus = iota
	// OrderFilled terminal, fully executed.
	OrderFilled
	// OrderRejected terminal, discarded during re-evaluation.
	OrderRejected
	// OrderCancelled terminal, withdrawn (account freeze).
	OrderCancelled
	// OrderExpired terminal, passed its expiry time.
	OrderExpired
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderFilled:
		return "filled"
	case OrderRejected:
		return "rejected"
	case OrderCancelled:
		return "cancelled"
	case OrderExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	return s != OrderPending
}

// RestingOrder is a GTC limit order carried across ticks. Orders live in an
// insertion-ordered, id-indexed collection on the account so iteration order
// and ownership stay well-defined.
type RestingOrder struct {
	Intent   OrderIntent
	Status   OrderStatus
	PlacedAt int64
}

// Expired reports whether the order has an expiry and now (epoch ms) passed it.
func (r *RestingOrder) Expired(now int64) bool {
	return r.Intent.ExpiresAt > 0 && now >= r.Intent.ExpiresAt
}

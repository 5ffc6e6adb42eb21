// Package market holds the engine's shared trading vocabulary and the
// collapsing price cache that front-ends a quote source.
package market

// Side is the engine's normalized order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the closing direction for a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderKind is the engine's normalized order type.
type OrderKind string

const (
	KindMarket    OrderKind = "MARKET"
	KindLimit     OrderKind = "LIMIT"
	KindStop      OrderKind = "STOP"
	KindStopLimit OrderKind = "STOP_LIMIT"

	// KindBracket is a one-cancels-other parent whose take-profit and
	// stop-loss children are tracked as separate orders.
	KindBracket OrderKind = "BRACKET"
)

// OrderStatus is the engine's normalized order state.
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderHeld     OrderStatus = "HELD"
	OrderFilled   OrderStatus = "FILLED"
	OrderCanceled OrderStatus = "CANCELED"
	OrderRejected OrderStatus = "REJECTED"
)

// LegRole discriminates bracket children and standalone exit orders.
type LegRole string

const (
	LegNone       LegRole = ""
	LegTakeProfit LegRole = "TAKE_PROFIT"
	LegStopLoss   LegRole = "STOP_LOSS"
)

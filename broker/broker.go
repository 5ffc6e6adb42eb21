// Package broker abstracts a brokerage behind the Connector interface and
// normalizes broker-specific enums into the engine's own vocabulary.
package broker

import (
	"context"

	"github.com/rustyeddy/autotrader/market"
)

// OrderRequest describes one order in the engine's vocabulary. Setting both
// TakeProfit and StopLoss on a market entry makes it a bracket order; the
// connector is responsible for translating that into the brokerage's
// one-cancels-other construct.
type OrderRequest struct {
	Symbol     string
	Side       market.Side
	Kind       market.OrderKind
	Quantity   float64
	LimitPrice float64
	StopPrice  float64

	// Bracket exits; both must be set for a bracket submit.
	TakeProfit float64
	StopLoss   float64
}

// Bracket reports whether the request carries both exit legs.
func (r OrderRequest) Bracket() bool {
	return r.TakeProfit > 0 && r.StopLoss > 0
}

// Leg is a bracket child as returned by the brokerage in the synchronous
// submit response. Side and Type are raw upstream strings in whatever casing
// the brokerage uses; LimitPrice/StopPrice are nil when absent. Legs are only
// available here: position refreshes cannot recover them later.
type Leg struct {
	BrokerOrderID string
	Side          string
	Type          string
	LimitPrice    *float64
	StopPrice     *float64
}

// SubmitResult is the connector's answer to an order submission.
type SubmitResult struct {
	BrokerOrderID string
	Status        market.OrderStatus
	FilledPrice   float64 // zero unless filled synchronously
	Legs          []Leg
}

// Position is a brokerage-held position snapshot.
type Position struct {
	Symbol     string
	Quantity   float64 // signed
	EntryPrice float64
}

// Connector is the account boundary the engine talks to. Implementations
// must tolerate callers that never look at Legs (non-bracket submits) and
// must not expect leg detail to be recoverable outside SubmitOrder.
type Connector interface {
	Name() string
	SubmitOrder(ctx context.Context, req OrderRequest) (SubmitResult, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	Positions(ctx context.Context) ([]Position, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Package journal is the engine's persistent record of recommendations,
// transactions, brokerage orders and per-action audit results.
package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("journal: not found")

	// ErrNotClosing is returned when a stuck-close reset is attempted on a
	// transaction that is not in the CLOSING state.
	ErrNotClosing = errors.New("journal: transaction is not closing")

	// ErrMissingRecommendation is returned when an action result arrives
	// without its triggering recommendation reference.
	ErrMissingRecommendation = errors.New("journal: action result requires a recommendation id")
)

// RecommendedAction is the direction a recommendation source suggests.
type RecommendedAction string

const (
	RecommendBuy   RecommendedAction = "BUY"
	RecommendSell  RecommendedAction = "SELL"
	RecommendHold  RecommendedAction = "HOLD"
	RecommendClose RecommendedAction = "CLOSE"
)

// Recommendation is an immutable snapshot from a recommendation source.
// The engine reads these; it never mutates them once stored.
type Recommendation struct {
	ID                string
	SourceID          string
	Symbol            string
	Action            RecommendedAction
	Confidence        int // 1-100
	ExpectedProfitPct float64
	RiskLevel         string
	TimeHorizon       string
	Price             float64 // price at recommendation time
	CreatedAt         time.Time
}

// TransactionStatus tracks a position's lifecycle.
type TransactionStatus string

const (
	TxWaiting TransactionStatus = "WAITING"
	TxOpened  TransactionStatus = "OPENED"
	TxClosing TransactionStatus = "CLOSING"
	TxClosed  TransactionStatus = "CLOSED"

	// TxFailed is terminal: the entry order never reached the broker, so
	// the transaction no longer blocks new positions for its symbol.
	TxFailed TransactionStatus = "FAILED"
)

// Transaction is the position-level record, distinct from individual orders.
// Quantity is signed: negative for short positions.
type Transaction struct {
	ID          string
	SourceID    string
	Symbol      string
	Quantity    float64
	OpenPrice   float64
	ClosePrice  float64
	Status      TransactionStatus
	CloseReason string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TradingOrder is one row per brokerage order or bracket leg.
//
// BrokerOrderID is empty until the broker confirms and write-once after that
// (see SetBrokerOrderID). DependsOn is set only for bracket legs and points
// at the parent order. LegRole is the first-class leg discriminant; Comment
// carries the same information as a deterministic text tag for brokerages
// that cannot return structured leg data after submission.
type TradingOrder struct {
	ID            string
	TransactionID string
	Kind          market.OrderKind
	Side          market.Side
	Status        market.OrderStatus
	Quantity      float64
	LimitPrice    float64 // zero when unset
	StopPrice     float64 // zero when unset
	FilledPrice   float64
	BrokerOrderID string
	DependsOn     string
	LegRole       market.LegRole
	Comment       string
	CreatedAt     time.Time
	FilledAt      time.Time // zero until filled
}

// ActionResult is the append-only audit record for one executed action.
// RecommendationID is mandatory for every action type.
type ActionResult struct {
	ID               string
	RecommendationID string
	ActionType       string
	Success          bool
	Message          string
	Payload          string // self-describing JSON: rule trace, TP/SL calc
	CreatedAt        time.Time
}

// Package sim is an in-memory Connector used by tests and dry runs. Market
// orders fill synchronously at the configured price; bracket submits return
// two child legs with lowercase side/type strings, the way a real brokerage
// might.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/internal/id"
	"github.com/rustyeddy/autotrader/market"
)

type Connector struct {
	mu         sync.Mutex
	prices     map[string]float64
	positions  map[string]*broker.Position
	submitted  []broker.OrderRequest
	canceled   []string
	fetchCount map[string]int

	// FailSubmit, when set, makes the next SubmitOrder return this error.
	FailSubmit error

	// FailPrice, when set, makes CurrentPrice fail for every symbol.
	FailPrice error
}

func New() *Connector {
	return &Connector{
		prices:     make(map[string]float64),
		positions:  make(map[string]*broker.Position),
		fetchCount: make(map[string]int),
	}
}

func (c *Connector) Name() string { return "sim" }

// SetPrice configures the synchronous fill/quote price for a symbol.
func (c *Connector) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

func (c *Connector) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailSubmit != nil {
		err := c.FailSubmit
		c.FailSubmit = nil
		return broker.SubmitResult{}, err
	}

	price, ok := c.prices[req.Symbol]
	if !ok {
		return broker.SubmitResult{}, fmt.Errorf("sim: no price for %s", req.Symbol)
	}

	c.submitted = append(c.submitted, req)

	res := broker.SubmitResult{
		BrokerOrderID: "sim-" + id.New(),
		Status:        market.OrderHeld,
	}

	// Market orders fill synchronously at the configured price.
	if req.Kind == market.KindMarket || req.Kind == market.KindBracket {
		res.Status = market.OrderFilled
		res.FilledPrice = price
		c.applyFill(req, price)
	}

	if req.Bracket() {
		// Raw strings are deliberately lowercase so the engine's
		// normalization is exercised on every bracket round trip.
		exitSide := "sell"
		if req.Side == market.Sell {
			exitSide = "buy"
		}
		tp := req.TakeProfit
		sl := req.StopLoss
		res.Legs = []broker.Leg{
			{BrokerOrderID: "sim-" + id.New(), Side: exitSide, Type: "limit", LimitPrice: &tp},
			{BrokerOrderID: "sim-" + id.New(), Side: exitSide, Type: "stop", StopPrice: &sl},
		}
	}

	return res, nil
}

func (c *Connector) CancelOrder(_ context.Context, brokerOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = append(c.canceled, brokerOrderID)
	return nil
}

func (c *Connector) Positions(_ context.Context) ([]broker.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]broker.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (c *Connector) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetchCount[symbol]++
	if c.FailPrice != nil {
		return 0, c.FailPrice
	}

	price, ok := c.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("sim: no price for %s", symbol)
	}
	return price, nil
}

// Submitted returns a copy of every order request received so far.
func (c *Connector) Submitted() []broker.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]broker.OrderRequest, len(c.submitted))
	copy(out, c.submitted)
	return out
}

// Canceled returns the broker order ids canceled so far.
func (c *Connector) Canceled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.canceled))
	copy(out, c.canceled)
	return out
}

// PriceFetches reports how many times CurrentPrice was called for symbol.
func (c *Connector) PriceFetches(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchCount[symbol]
}

func (c *Connector) applyFill(req broker.OrderRequest, price float64) {
	qty := req.Quantity
	if req.Side == market.Sell {
		qty = -qty
	}

	pos, ok := c.positions[req.Symbol]
	if !ok {
		c.positions[req.Symbol] = &broker.Position{
			Symbol:     req.Symbol,
			Quantity:   qty,
			EntryPrice: price,
		}
		return
	}

	pos.Quantity += qty
	if pos.Quantity == 0 {
		delete(c.positions, req.Symbol)
	}
}

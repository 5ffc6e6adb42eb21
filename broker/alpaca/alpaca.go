// Package alpaca implements the broker.Connector against the Alpaca trading
// and market-data APIs.
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/internal/util"
	"github.com/rustyeddy/autotrader/market"
)

// Compile-time interface check.
var _ broker.Connector = (*Connector)(nil)

type Connector struct {
	trade *alpaca.Client
	md    *marketdata.Client
}

// New builds a connector for the given credentials. baseURL selects paper or
// live trading (e.g. https://paper-api.alpaca.markets).
func New(apiKey, apiSecret, baseURL string) *Connector {
	return &Connector{
		trade: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func (c *Connector) Name() string { return "alpaca" }

// SubmitOrder translates the request into an Alpaca order. Bracket requests
// become an Alpaca bracket-class order; the legs in the synchronous response
// are passed through raw for the lifecycle manager to normalize.
func (c *Connector) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.SubmitResult, error) {
	qty := decimal.NewFromFloat(req.Quantity)

	placeReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpacaSide(req.Side),
		Type:        alpacaType(req.Kind),
		TimeInForce: alpaca.Day,
	}

	if req.LimitPrice > 0 {
		lp := decimal.NewFromFloat(req.LimitPrice)
		placeReq.LimitPrice = &lp
	}
	if req.StopPrice > 0 {
		sp := decimal.NewFromFloat(req.StopPrice)
		placeReq.StopPrice = &sp
	}

	if req.Bracket() {
		tp := decimal.NewFromFloat(req.TakeProfit)
		sl := decimal.NewFromFloat(req.StopLoss)
		placeReq.OrderClass = alpaca.Bracket
		placeReq.TakeProfit = &alpaca.TakeProfit{LimitPrice: &tp}
		placeReq.StopLoss = &alpaca.StopLoss{StopPrice: &sl}
	}

	order, err := c.trade.PlaceOrder(placeReq)
	if err != nil {
		return broker.SubmitResult{}, fmt.Errorf("alpaca place order %s: %w", req.Symbol, err)
	}

	res := broker.SubmitResult{
		BrokerOrderID: order.ID,
		Status:        broker.ParseStatus(string(order.Status)),
	}
	if order.FilledAvgPrice != nil {
		res.FilledPrice = order.FilledAvgPrice.InexactFloat64()
	}

	for _, leg := range order.Legs {
		res.Legs = append(res.Legs, broker.Leg{
			BrokerOrderID: leg.ID,
			Side:          string(leg.Side),
			Type:          string(leg.Type),
			LimitPrice:    decimalPtr(leg.LimitPrice),
			StopPrice:     decimalPtr(leg.StopPrice),
		})
	}

	return res, nil
}

func (c *Connector) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := c.trade.CancelOrder(brokerOrderID); err != nil {
		return fmt.Errorf("alpaca cancel order %s: %w", brokerOrderID, err)
	}
	return nil
}

func (c *Connector) Positions(ctx context.Context) ([]broker.Position, error) {
	positions, err := c.trade.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca positions: %w", err)
	}

	out := make([]broker.Position, 0, len(positions))
	for _, p := range positions {
		qty := p.Qty.InexactFloat64()
		out = append(out, broker.Position{
			Symbol:     p.Symbol,
			Quantity:   qty,
			EntryPrice: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

// CurrentPrice fetches the latest trade price. Quote lookups are retried
// with backoff; order submission deliberately is not (it is not idempotent).
func (c *Connector) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64

	err := util.Retry(ctx, 3, 200*time.Millisecond, func() error {
		trade, err := c.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
		if err != nil {
			return err
		}
		if trade == nil {
			return fmt.Errorf("no trade data for %s", symbol)
		}
		price = trade.Price
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("alpaca latest trade %s: %w", symbol, err)
	}
	return price, nil
}

func alpacaSide(s market.Side) alpaca.Side {
	if s == market.Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func alpacaType(k market.OrderKind) alpaca.OrderType {
	switch k {
	case market.KindLimit:
		return alpaca.Limit
	case market.KindStop:
		return alpaca.Stop
	case market.KindStopLimit:
		return alpaca.StopLimit
	default:
		// Bracket parents are market entries with attached exits.
		return alpaca.Market
	}
}

func decimalPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

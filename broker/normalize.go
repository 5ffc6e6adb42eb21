package broker

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/autotrader/market"
)

// ParseSide normalizes a broker-specific side string ("buy", "BUY", "Sell")
// into the engine's Side vocabulary.
func ParseSide(raw string) (market.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG":
		return market.Buy, nil
	case "SELL", "SHORT":
		return market.Sell, nil
	default:
		return "", fmt.Errorf("unknown order side %q", raw)
	}
}

// ClassifyLeg maps a bracket leg onto the engine's order kind from the
// prices the brokerage reported: a leg with only a limit price is a plain
// limit order, limit plus stop is a stop-limit, stop only is a stop order.
func ClassifyLeg(leg Leg) (market.OrderKind, error) {
	hasLimit := leg.LimitPrice != nil && *leg.LimitPrice > 0
	hasStop := leg.StopPrice != nil && *leg.StopPrice > 0

	switch {
	case hasLimit && hasStop:
		return market.KindStopLimit, nil
	case hasLimit:
		return market.KindLimit, nil
	case hasStop:
		return market.KindStop, nil
	default:
		return "", fmt.Errorf("bracket leg %s has neither limit nor stop price", leg.BrokerOrderID)
	}
}

// LegRoleFor derives the take-profit/stop-loss role of a leg: the limit-only
// child of a bracket is the take-profit, any leg with a stop price is the
// stop-loss.
func LegRoleFor(leg Leg) (market.LegRole, error) {
	kind, err := ClassifyLeg(leg)
	if err != nil {
		return market.LegNone, err
	}
	if kind == market.KindLimit {
		return market.LegTakeProfit, nil
	}
	return market.LegStopLoss, nil
}

// ParseStatus normalizes a broker order status string.
func ParseStatus(raw string) market.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "FILLED":
		return market.OrderFilled
	case "HELD", "ACCEPTED", "NEW":
		return market.OrderHeld
	case "CANCELED", "CANCELLED":
		return market.OrderCanceled
	case "REJECTED":
		return market.OrderRejected
	default:
		return market.OrderPending
	}
}

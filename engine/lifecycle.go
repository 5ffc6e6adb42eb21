package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
)

// exitDirection decides whether TP/SL math runs long or short. The
// triggering recommendation wins: BUY means long, SELL means short. Only
// when the recommendation carries no direction (a rule reacting to an
// already-open position) does the existing order's recorded side apply. A
// single rule may fire on both BUY and SELL recommendations, so using the
// existing side unconditionally would compute targets in the wrong direction
// for new entries.
func exitDirection(action journal.RecommendedAction, existing market.Side) (market.Side, error) {
	switch action {
	case journal.RecommendBuy:
		return market.Buy, nil
	case journal.RecommendSell:
		return market.Sell, nil
	}
	if existing == market.Buy || existing == market.Sell {
		return existing, nil
	}
	return "", fmt.Errorf("cannot determine position direction: recommendation is %s and no existing order side", action)
}

// TakeProfitPrice computes the profit target from a reference price and a
// percent offset. The sign of pct is cosmetic; direction always comes from
// the long/short determination. Long targets sit above the reference, short
// targets below.
func TakeProfitPrice(dir market.Side, reference, pct float64) float64 {
	p := math.Abs(pct) / 100
	if dir == market.Sell {
		return reference * (1 - p)
	}
	return reference * (1 + p)
}

// StopLossPrice is the mirror of TakeProfitPrice: long stops sit below the
// reference, short stops above.
func StopLossPrice(dir market.Side, reference, pct float64) float64 {
	p := math.Abs(pct) / 100
	if dir == market.Sell {
		return reference * (1 + p)
	}
	return reference * (1 - p)
}

// exitCalc is embedded in the audit payload of TP/SL actions so the price
// math can be replayed from the journal alone.
type exitCalc struct {
	Direction string  `json:"direction"`
	Reference string  `json:"reference"`
	RefValue  float64 `json:"reference_value"`
	Percent   float64 `json:"percent"`
	Target    float64 `json:"target"`
}

// legComment builds the deterministic text tag for a bracket leg, naming the
// leg role plus the parent's internal and broker ids. The tag keeps legs
// identifiable at brokerages that cannot return structured leg data after
// submission.
func legComment(role market.LegRole, parentID, parentBrokerID string) string {
	tag := "TP"
	if role == market.LegStopLoss {
		tag = "SL"
	}
	return fmt.Sprintf("%s parent=%s broker=%s", tag, parentID, parentBrokerID)
}

// recordBracketLegs persists one TradingOrder per child leg from a bracket
// submit response. Legs are only visible in that synchronous response, so
// this is the single place they enter the journal. Broker side/type strings
// are normalized here regardless of casing.
func (e *Engine) recordBracketLegs(parent *journal.TradingOrder, legs []broker.Leg) error {
	for _, leg := range legs {
		side, err := broker.ParseSide(leg.Side)
		if err != nil {
			return fmt.Errorf("bracket leg %s: %w", leg.BrokerOrderID, err)
		}
		kind, err := broker.ClassifyLeg(leg)
		if err != nil {
			return err
		}
		role, err := broker.LegRoleFor(leg)
		if err != nil {
			return err
		}

		order := journal.TradingOrder{
			TransactionID: parent.TransactionID,
			Kind:          kind,
			Side:          side,
			Status:        market.OrderHeld,
			Quantity:      parent.Quantity,
			BrokerOrderID: leg.BrokerOrderID,
			DependsOn:     parent.ID,
			LegRole:       role,
			Comment:       legComment(role, parent.ID, parent.BrokerOrderID),
		}
		if leg.LimitPrice != nil {
			order.LimitPrice = *leg.LimitPrice
		}
		if leg.StopPrice != nil {
			order.StopPrice = *leg.StopPrice
		}

		if err := e.store.InsertOrder(&order); err != nil {
			return fmt.Errorf("record bracket leg: %w", err)
		}

		e.log.Info("bracket leg recorded",
			"parent", parent.ID, "leg", order.ID, "role", string(role), "kind", string(kind))
	}
	return nil
}

// Fill is an order fill observed at the brokerage, keyed by the engine's own
// order id.
type Fill struct {
	OrderID string
	Price   float64
	At      time.Time
}

// ProcessFills applies a batch of observed fills and drives transaction
// closure. Bracket-leg fills are applied before standalone exit fills and
// plain order fills, so when several closure paths trigger in the same
// refresh cycle the bracket leg's close reason wins and later triggers
// become no-ops. Within the same priority class, fill time decides.
func (e *Engine) ProcessFills(ctx context.Context, fills []Fill) error {
	type loaded struct {
		fill  Fill
		order journal.TradingOrder
	}

	var batch []loaded
	for _, f := range fills {
		order, err := e.store.GetOrder(f.OrderID)
		if err != nil {
			return fmt.Errorf("fill for unknown order %s: %w", f.OrderID, err)
		}
		batch = append(batch, loaded{fill: f, order: order})
	}

	priority := func(o journal.TradingOrder) int {
		switch {
		case o.DependsOn != "":
			return 0 // bracket leg
		case o.LegRole != market.LegNone:
			return 1 // standalone exit
		default:
			return 2
		}
	}
	sort.SliceStable(batch, func(i, k int) bool {
		pi, pk := priority(batch[i].order), priority(batch[k].order)
		if pi != pk {
			return pi < pk
		}
		return batch[i].fill.At.Before(batch[k].fill.At)
	})

	for _, item := range batch {
		if err := e.applyFill(ctx, item.order, item.fill); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyFill(ctx context.Context, order journal.TradingOrder, f Fill) error {
	at := f.At
	if at.IsZero() {
		at = e.now()
	}
	if err := e.store.MarkOrderFilled(order.ID, f.Price, at); err != nil {
		return err
	}

	tx, err := e.store.GetTransaction(order.TransactionID)
	if err != nil {
		return err
	}

	switch {
	case order.DependsOn != "":
		// A filled bracket leg closes the position immediately; the
		// surviving sibling is canceled (one-cancels-other).
		reason := fmt.Sprintf("bracket %s leg %s filled", order.LegRole, order.ID)
		if err := e.closeFromFill(tx, reason, f.Price); err != nil {
			return err
		}
		return e.cancelSiblingLegs(ctx, order)

	case order.LegRole != market.LegNone:
		reason := fmt.Sprintf("%s order %s filled", order.LegRole, order.ID)
		return e.closeFromFill(tx, reason, f.Price)

	default:
		if tx.Status == journal.TxWaiting {
			if _, err := e.store.MarkOpened(tx.ID, f.Price); err != nil {
				return err
			}
			e.log.Info("transaction opened", "transaction", tx.ID, "price", f.Price)
			return nil
		}
		if tx.Status == journal.TxClosing {
			if _, err := e.store.MarkClosed(tx.ID, f.Price); err != nil {
				return err
			}
			e.log.Info("transaction closed", "transaction", tx.ID, "price", f.Price)
		}
		return nil
	}
}

// closeFromFill runs OPENED -> CLOSING -> CLOSED in one step for exits that
// fill directly (bracket legs, standalone TP/SL). MarkClosing only succeeds
// from OPENED, so a transaction that already started closing keeps its
// original reason.
func (e *Engine) closeFromFill(tx journal.Transaction, reason string, price float64) error {
	moved, err := e.store.MarkClosing(tx.ID, reason)
	if err != nil {
		return err
	}
	if !moved && tx.Status != journal.TxClosing {
		// Already closed, or never opened; nothing more to do.
		return nil
	}
	if _, err := e.store.MarkClosed(tx.ID, price); err != nil {
		return err
	}
	e.log.Info("transaction closed", "transaction", tx.ID, "reason", reason, "price", price)
	return nil
}

func (e *Engine) cancelSiblingLegs(ctx context.Context, filled journal.TradingOrder) error {
	siblings, err := e.store.LegsByParent(filled.DependsOn)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID == filled.ID || s.Status == market.OrderFilled || s.Status == market.OrderCanceled {
			continue
		}
		if s.BrokerOrderID != "" {
			if err := e.connector.CancelOrder(ctx, s.BrokerOrderID); err != nil {
				e.log.Warn("cancel sibling leg at broker failed",
					"leg", s.ID, "broker_order", s.BrokerOrderID, "err", err)
			}
		}
		if err := e.store.UpdateOrderStatus(s.ID, market.OrderCanceled); err != nil {
			return err
		}
	}
	return nil
}

// ResetStuckClosing recovers a transaction whose close attempt never
// completed. The journal validates that the transaction really is CLOSING
// and picks the reset target from its fill history.
func (e *Engine) ResetStuckClosing(txID string) (journal.TransactionStatus, error) {
	return e.store.ResetClosing(txID)
}

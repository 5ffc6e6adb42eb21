package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/rules"
)

// resultPayload is the self-describing audit payload stored with every
// action result: the full evaluation trace plus, for TP/SL actions, the
// price-calculation inputs and output.
type resultPayload struct {
	Trace []rules.RuleTrace `json:"trace"`
	Calc  *exitCalc         `json:"calc,omitempty"`
}

// executeAction instantiates and runs one configured action. Every path,
// success or failure, produces exactly one persisted ActionResult carrying
// the triggering recommendation; action types are a closed set dispatched by
// switch. Failures are isolated: the caller continues with the next action.
func (e *Engine) executeAction(ctx context.Context, rec journal.Recommendation, cfg rules.ActionConfig, traces []rules.RuleTrace) journal.ActionResult {
	var (
		msg  string
		calc *exitCalc
		err  error
	)

	switch cfg.Type {
	case rules.ActionBuy:
		msg, err = e.execEntry(ctx, rec, cfg, market.Buy)
	case rules.ActionSell:
		msg, err = e.execEntry(ctx, rec, cfg, market.Sell)
	case rules.ActionClose:
		msg, err = e.execClose(ctx, rec)
	case rules.ActionAdjustTakeProfit:
		msg, calc, err = e.execAdjustExit(ctx, rec, cfg, market.LegTakeProfit)
	case rules.ActionAdjustStopLoss:
		msg, calc, err = e.execAdjustExit(ctx, rec, cfg, market.LegStopLoss)
	case rules.ActionIncreaseShare:
		msg, err = e.execResize(ctx, rec, cfg, true)
	case rules.ActionDecreaseShare:
		msg, err = e.execResize(ctx, rec, cfg, false)
	case rules.ActionEvaluationOnly:
		msg = "conditions evaluated, no order submitted"
	default:
		err = fmt.Errorf("unknown action type %q", cfg.Type)
	}

	result := journal.ActionResult{
		RecommendationID: rec.ID,
		ActionType:       string(cfg.Type),
		Success:          err == nil,
		Message:          msg,
		Payload:          marshalPayload(resultPayload{Trace: traces, Calc: calc}),
	}
	if err != nil {
		result.Message = err.Error()
		e.log.Warn("action failed",
			"recommendation", rec.ID, "action", string(cfg.Type), "err", err)
	}

	if insErr := e.store.InsertActionResult(&result); insErr != nil {
		e.log.Error("persist action result failed", "recommendation", rec.ID, "err", insErr)
	}
	return result
}

func (e *Engine) recordFailure(rec journal.Recommendation, actionType string, traces []rules.RuleTrace, msg string) journal.ActionResult {
	result := journal.ActionResult{
		RecommendationID: rec.ID,
		ActionType:       actionType,
		Success:          false,
		Message:          msg,
		Payload:          marshalPayload(resultPayload{Trace: traces}),
	}
	if err := e.store.InsertActionResult(&result); err != nil {
		e.log.Error("persist action result failed", "recommendation", rec.ID, "err", err)
	}
	return result
}

// execEntry opens a new position with a market order, or a bracket order
// when the config carries both exit percents.
func (e *Engine) execEntry(ctx context.Context, rec journal.Recommendation, cfg rules.ActionConfig, side market.Side) (string, error) {
	// Second safety net beyond the run lock: sequential runs may both see
	// a recommendation before the first one's transaction is visible.
	existing, err := e.store.FindOpenTransaction(rec.SourceID, rec.Symbol)
	if err != nil {
		return "", err
	}
	if existing != nil {
		e.log.Warn("duplicate position skipped",
			"source", rec.SourceID, "symbol", rec.Symbol, "transaction", existing.ID)
		return "", fmt.Errorf("%w: %s already has transaction %s (%s)",
			ErrDuplicatePosition, rec.Symbol, existing.ID, existing.Status)
	}

	qty := cfg.Quantity
	if qty <= 0 {
		qty = 1
	}

	signedQty := qty
	if side == market.Sell {
		signedQty = -qty
	}
	tx := journal.Transaction{
		SourceID: rec.SourceID,
		Symbol:   rec.Symbol,
		Quantity: signedQty,
		Status:   journal.TxWaiting,
	}
	if err := e.store.InsertTransaction(&tx); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	req := broker.OrderRequest{
		Symbol:   rec.Symbol,
		Side:     side,
		Kind:     market.KindMarket,
		Quantity: qty,
	}

	if cfg.TakeProfitPct > 0 && cfg.StopLossPct > 0 {
		dir, derr := exitDirection(rec.Action, side)
		if derr != nil {
			e.abandonEntry(tx.ID, derr)
			return "", derr
		}
		ref := rec.Price
		req.Kind = market.KindBracket
		req.TakeProfit = TakeProfitPrice(dir, ref, cfg.TakeProfitPct)
		req.StopLoss = StopLossPrice(dir, ref, cfg.StopLossPct)
	}

	order := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          req.Kind,
		Side:          side,
		Quantity:      qty,
	}
	if err := e.store.InsertOrder(&order); err != nil {
		err = fmt.Errorf("create order: %w", err)
		e.abandonEntry(tx.ID, err)
		return "", err
	}

	res, err := e.connector.SubmitOrder(ctx, req)
	if err != nil {
		if uerr := e.store.UpdateOrderStatus(order.ID, market.OrderRejected); uerr != nil {
			e.log.Error("mark order rejected failed", "order", order.ID, "err", uerr)
		}
		err = fmt.Errorf("submit %s %s: %w", side, rec.Symbol, err)
		e.abandonEntry(tx.ID, err)
		return "", err
	}

	if err := e.store.SetBrokerOrderID(order.ID, res.BrokerOrderID); err != nil {
		return "", err
	}
	order.BrokerOrderID = res.BrokerOrderID

	if res.Status == market.OrderFilled {
		if err := e.store.MarkOrderFilled(order.ID, res.FilledPrice, e.now()); err != nil {
			return "", err
		}
		if _, err := e.store.MarkOpened(tx.ID, res.FilledPrice); err != nil {
			return "", err
		}
	} else if err := e.store.UpdateOrderStatus(order.ID, res.Status); err != nil {
		return "", err
	}

	if len(res.Legs) > 0 {
		if err := e.recordBracketLegs(&order, res.Legs); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%s %.4g %s submitted, broker order %s",
		side, qty, rec.Symbol, res.BrokerOrderID), nil
}

// abandonEntry moves a WAITING transaction whose order never reached the
// broker to FAILED, so the symbol is free for the next evaluation run. A
// transaction that is past WAITING has a live broker order and keeps its
// normal lifecycle.
func (e *Engine) abandonEntry(txID string, cause error) {
	moved, err := e.store.MarkFailed(txID, cause.Error())
	if err != nil {
		e.log.Error("abandon entry transaction failed", "transaction", txID, "err", err)
		return
	}
	if moved {
		e.log.Warn("entry transaction abandoned", "transaction", txID, "reason", cause.Error())
	}
}

// execClose submits a closing order for the open position and moves the
// transaction to CLOSING.
func (e *Engine) execClose(ctx context.Context, rec journal.Recommendation) (string, error) {
	tx, err := e.store.FindOpenTransaction(rec.SourceID, rec.Symbol)
	if err != nil {
		return "", err
	}
	if tx == nil {
		return "", fmt.Errorf("%w: nothing to close for %s", ErrNoPosition, rec.Symbol)
	}
	if tx.Status != journal.TxOpened {
		return "", fmt.Errorf("transaction %s is %s, not OPENED", tx.ID, tx.Status)
	}

	side := market.Sell
	if tx.Quantity < 0 {
		side = market.Buy
	}
	qty := math.Abs(tx.Quantity)

	order := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindMarket,
		Side:          side,
		Quantity:      qty,
		Comment:       "close position",
	}
	if err := e.store.InsertOrder(&order); err != nil {
		return "", err
	}

	res, err := e.connector.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   rec.Symbol,
		Side:     side,
		Kind:     market.KindMarket,
		Quantity: qty,
	})
	if err != nil {
		if uerr := e.store.UpdateOrderStatus(order.ID, market.OrderRejected); uerr != nil {
			e.log.Error("mark order rejected failed", "order", order.ID, "err", uerr)
		}
		return "", fmt.Errorf("submit close for %s: %w", rec.Symbol, err)
	}

	if err := e.store.SetBrokerOrderID(order.ID, res.BrokerOrderID); err != nil {
		return "", err
	}
	if _, err := e.store.MarkClosing(tx.ID, "rule CLOSE action"); err != nil {
		return "", err
	}

	if res.Status == market.OrderFilled {
		if err := e.store.MarkOrderFilled(order.ID, res.FilledPrice, e.now()); err != nil {
			return "", err
		}
		if _, err := e.store.MarkClosed(tx.ID, res.FilledPrice); err != nil {
			return "", err
		}
		return fmt.Sprintf("position %s closed at %.4f", tx.ID, res.FilledPrice), nil
	}

	return fmt.Sprintf("close order %s submitted for transaction %s", res.BrokerOrderID, tx.ID), nil
}

// execAdjustExit recomputes a take-profit or stop-loss target and replaces
// the standalone exit order of that role.
func (e *Engine) execAdjustExit(ctx context.Context, rec journal.Recommendation, cfg rules.ActionConfig, role market.LegRole) (string, *exitCalc, error) {
	tx, err := e.store.FindOpenTransaction(rec.SourceID, rec.Symbol)
	if err != nil {
		return "", nil, err
	}
	if tx == nil || tx.Status != journal.TxOpened {
		// A WAITING or CLOSING transaction has no filled position to hang
		// an exit order on.
		return "", nil, fmt.Errorf("%w: no opened position to adjust for %s", ErrNoPosition, rec.Symbol)
	}

	dir, err := exitDirection(rec.Action, e.recordedSide(tx))
	if err != nil {
		return "", nil, err
	}

	refName := cfg.Reference
	if refName == "" {
		refName = "recommendation.price"
	}
	resolver := &operandResolver{ctx: ctx, engine: e, rec: rec, tx: tx}
	refVal, err := resolver.Resolve(refName)
	if err != nil {
		return "", nil, fmt.Errorf("reference %s: %w", refName, err)
	}
	if refVal.Text {
		return "", nil, fmt.Errorf("reference %s is not numeric", refName)
	}

	var target float64
	if role == market.LegTakeProfit {
		target = TakeProfitPrice(dir, refVal.Num, cfg.Percent)
	} else {
		target = StopLossPrice(dir, refVal.Num, cfg.Percent)
	}
	calc := &exitCalc{
		Direction: string(dir),
		Reference: refName,
		RefValue:  refVal.Num,
		Percent:   cfg.Percent,
		Target:    target,
	}

	// Replace any live exit order of this role.
	prev, err := e.store.FindExitOrder(tx.ID, role)
	if err != nil {
		return "", nil, err
	}
	if prev != nil {
		if prev.BrokerOrderID != "" {
			if err := e.connector.CancelOrder(ctx, prev.BrokerOrderID); err != nil {
				return "", nil, fmt.Errorf("cancel previous %s order: %w", role, err)
			}
		}
		if err := e.store.UpdateOrderStatus(prev.ID, market.OrderCanceled); err != nil {
			return "", nil, err
		}
	}

	exitSide := dir.Opposite()
	req := broker.OrderRequest{
		Symbol:   rec.Symbol,
		Side:     exitSide,
		Quantity: math.Abs(tx.Quantity),
	}
	order := journal.TradingOrder{
		TransactionID: tx.ID,
		Side:          exitSide,
		Quantity:      req.Quantity,
		LegRole:       role,
	}
	if role == market.LegTakeProfit {
		req.Kind = market.KindLimit
		req.LimitPrice = target
		order.Kind = market.KindLimit
		order.LimitPrice = target
	} else {
		req.Kind = market.KindStop
		req.StopPrice = target
		order.Kind = market.KindStop
		order.StopPrice = target
	}

	if err := e.store.InsertOrder(&order); err != nil {
		return "", nil, err
	}

	res, err := e.connector.SubmitOrder(ctx, req)
	if err != nil {
		if uerr := e.store.UpdateOrderStatus(order.ID, market.OrderRejected); uerr != nil {
			e.log.Error("mark order rejected failed", "order", order.ID, "err", uerr)
		}
		return "", calc, fmt.Errorf("submit %s order: %w", role, err)
	}
	if err := e.store.SetBrokerOrderID(order.ID, res.BrokerOrderID); err != nil {
		return "", calc, err
	}
	if res.Status != market.OrderFilled {
		if err := e.store.UpdateOrderStatus(order.ID, res.Status); err != nil {
			return "", calc, err
		}
	}

	return fmt.Sprintf("%s set to %.4f (%s from %s=%.4f)",
		role, target, string(dir), refName, refVal.Num), calc, nil
}

// execResize grows or shrinks the open position with a market order.
func (e *Engine) execResize(ctx context.Context, rec journal.Recommendation, cfg rules.ActionConfig, increase bool) (string, error) {
	tx, err := e.store.FindOpenTransaction(rec.SourceID, rec.Symbol)
	if err != nil {
		return "", err
	}
	if tx == nil || tx.Status != journal.TxOpened {
		return "", fmt.Errorf("%w: no opened position for %s", ErrNoPosition, rec.Symbol)
	}

	qty := cfg.Quantity
	if qty <= 0 {
		qty = 1
	}

	// Long positions grow by buying, short positions grow by selling more.
	long := tx.Quantity > 0
	side := market.Buy
	if long != increase {
		side = market.Sell
	}

	order := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindMarket,
		Side:          side,
		Quantity:      qty,
	}
	if err := e.store.InsertOrder(&order); err != nil {
		return "", err
	}

	res, err := e.connector.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   rec.Symbol,
		Side:     side,
		Kind:     market.KindMarket,
		Quantity: qty,
	})
	if err != nil {
		if uerr := e.store.UpdateOrderStatus(order.ID, market.OrderRejected); uerr != nil {
			e.log.Error("mark order rejected failed", "order", order.ID, "err", uerr)
		}
		return "", fmt.Errorf("submit resize for %s: %w", rec.Symbol, err)
	}
	if err := e.store.SetBrokerOrderID(order.ID, res.BrokerOrderID); err != nil {
		return "", err
	}
	if res.Status == market.OrderFilled {
		if err := e.store.MarkOrderFilled(order.ID, res.FilledPrice, e.now()); err != nil {
			return "", err
		}
	}

	delta := qty
	if !increase {
		delta = -qty
	}
	if tx.Quantity < 0 {
		delta = -delta
	}
	newQty := tx.Quantity + delta
	if err := e.store.UpdateTransactionQuantity(tx.ID, newQty); err != nil {
		return "", err
	}

	verb := "increased"
	if !increase {
		verb = "decreased"
	}
	return fmt.Sprintf("position %s %s by %.4g to %.4g", tx.ID, verb, qty, newQty), nil
}

// recordedSide returns the side of the transaction's most recent entry
// order, used as the direction fallback when a recommendation carries none.
func (e *Engine) recordedSide(tx *journal.Transaction) market.Side {
	orders, err := e.store.OrdersByTransaction(tx.ID)
	if err != nil {
		e.log.Error("orders lookup failed", "transaction", tx.ID, "err", err)
		return ""
	}
	for i := len(orders) - 1; i >= 0; i-- {
		o := orders[i]
		if o.LegRole == market.LegNone && o.DependsOn == "" {
			return o.Side
		}
	}
	if tx.Quantity < 0 {
		return market.Sell
	}
	if tx.Quantity > 0 {
		return market.Buy
	}
	return ""
}

func marshalPayload(p resultPayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Package engine is the rule-driven order decision core: it evaluates
// recommendations against configured rulesets, executes the resulting
// actions through a broker connector, and drives the transaction lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/rules"
)

var (
	// ErrDuplicatePosition is returned when an entry action targets a
	// symbol that already has an open or pending transaction for the same
	// recommendation source.
	ErrDuplicatePosition = errors.New("engine: duplicate position")

	// ErrNoPosition is returned when a position-dependent action runs
	// without an open transaction.
	ErrNoPosition = errors.New("engine: no open position")
)

const defaultLockTimeout = 250 * time.Millisecond

// Engine wires the journal, a broker connector, the price cache and the rule
// library into the evaluation entry point.
type Engine struct {
	store     *journal.SQLite
	connector broker.Connector
	quotes    *market.Cache
	library   *rules.Library

	account     string
	lockTimeout time.Duration
	locks       *runLocks
	log         *slog.Logger
	now         func() time.Time
}

// Options tunes engine construction. Zero values select defaults.
type Options struct {
	// Account names the brokerage account for price-cache keying.
	Account string

	// LockTimeout bounds how long Evaluate waits for the per-(source,
	// use-case) run lock before skipping. Defaults to 250ms.
	LockTimeout time.Duration

	Log *slog.Logger
}

func New(store *journal.SQLite, connector broker.Connector, quotes *market.Cache, library *rules.Library, opts Options) *Engine {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Account == "" {
		opts.Account = connector.Name()
	}

	return &Engine{
		store:       store,
		connector:   connector,
		quotes:      quotes,
		library:     library,
		account:     opts.Account,
		lockTimeout: opts.LockTimeout,
		locks:       newRunLocks(),
		log:         opts.Log,
		now:         time.Now,
	}
}

// Evaluate runs the configured ruleset for a use case against every
// recommendation the source produced within the lookback window, and returns
// the audit record of every executed action.
//
// Concurrent calls for the same (source, use case) pair are collapsed: a
// caller that cannot take the run lock within the configured timeout logs at
// info level and returns an empty result. Failures inside one
// recommendation or one action never abort the rest of the batch.
func (e *Engine) Evaluate(ctx context.Context, sourceID string, useCase rules.UseCase, lookback time.Duration) ([]journal.ActionResult, error) {
	release, ok := e.locks.acquire(runKey{source: sourceID, useCase: useCase}, e.lockTimeout)
	if !ok {
		e.log.Info("evaluation already in flight, skipping run",
			"source", sourceID, "use_case", string(useCase))
		return nil, nil
	}
	defer release()

	ruleset, err := e.library.ForUseCase(useCase)
	if err != nil {
		return nil, err
	}

	recs, err := e.store.ListRecommendationsSince(sourceID, e.now().Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("load recommendations: %w", err)
	}

	var results []journal.ActionResult
	for _, rec := range recs {
		results = append(results, e.evaluateRecommendation(ctx, rec, ruleset)...)
	}
	return results, nil
}

// evaluateRecommendation runs the ruleset for one recommendation. A rule
// evaluation error (unknown operand, malformed condition) fails fast for
// this recommendation only, surfaced as a failed audit row rather than
// silently skipped.
func (e *Engine) evaluateRecommendation(ctx context.Context, rec journal.Recommendation, ruleset *rules.Ruleset) []journal.ActionResult {
	openTx, err := e.store.FindOpenTransaction(rec.SourceID, rec.Symbol)
	if err != nil {
		e.log.Error("open transaction lookup failed", "recommendation", rec.ID, "err", err)
		return []journal.ActionResult{e.recordFailure(rec, string(rules.ActionEvaluationOnly), nil,
			fmt.Sprintf("transaction lookup failed: %v", err))}
	}

	resolver := &operandResolver{ctx: ctx, engine: e, rec: rec, tx: openTx}

	fired, traces, err := rules.Evaluate(ruleset, resolver)
	if err != nil {
		return []journal.ActionResult{e.recordFailure(rec, string(rules.ActionEvaluationOnly), traces,
			fmt.Sprintf("rule evaluation failed: %v", err))}
	}

	var results []journal.ActionResult
	for _, f := range fired {
		for _, cfg := range f.Rule.Actions {
			results = append(results, e.executeAction(ctx, rec, cfg, traces))
		}
	}
	return results
}

// operandResolver supplies condition operands from the recommendation, the
// live price cache, and the open position, if any.
type operandResolver struct {
	ctx    context.Context
	engine *Engine
	rec    journal.Recommendation
	tx     *journal.Transaction
}

func (r *operandResolver) Resolve(name string) (rules.Value, error) {
	switch name {
	case "recommendation.confidence":
		return rules.Number(float64(r.rec.Confidence)), nil
	case "recommendation.expected_profit_pct":
		return rules.Number(r.rec.ExpectedProfitPct), nil
	case "recommendation.price":
		return rules.Number(r.rec.Price), nil
	case "recommendation.action":
		return rules.Text(string(r.rec.Action)), nil
	case "recommendation.risk_level":
		return rules.Text(r.rec.RiskLevel), nil
	case "current_price":
		price, err := r.engine.quotes.Price(r.ctx, r.engine.account, r.rec.Symbol)
		if err != nil {
			return rules.Value{}, fmt.Errorf("current price for %s: %w", r.rec.Symbol, err)
		}
		return rules.Number(price), nil
	case "position.entry_price":
		if r.tx == nil {
			return rules.Value{}, fmt.Errorf("operand %s: %w", name, ErrNoPosition)
		}
		return rules.Number(r.tx.OpenPrice), nil
	case "position.quantity":
		if r.tx == nil {
			return rules.Value{}, fmt.Errorf("operand %s: %w", name, ErrNoPosition)
		}
		return rules.Number(r.tx.Quantity), nil
	case "position.unrealized_pnl_pct":
		if r.tx == nil {
			return rules.Value{}, fmt.Errorf("operand %s: %w", name, ErrNoPosition)
		}
		price, err := r.engine.quotes.Price(r.ctx, r.engine.account, r.rec.Symbol)
		if err != nil {
			return rules.Value{}, fmt.Errorf("current price for %s: %w", r.rec.Symbol, err)
		}
		return rules.Number(unrealizedPnLPct(r.tx, price)), nil
	default:
		return rules.Value{}, fmt.Errorf("%w: %s", rules.ErrUnknownOperand, name)
	}
}

// unrealizedPnLPct is signed by position direction: a short position profits
// when price drops below the open price.
func unrealizedPnLPct(tx *journal.Transaction, currentPrice float64) float64 {
	if tx.OpenPrice == 0 {
		return 0
	}
	pct := (currentPrice - tx.OpenPrice) / tx.OpenPrice * 100
	if tx.Quantity < 0 {
		return -pct
	}
	return pct
}

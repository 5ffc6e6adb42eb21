// Package rules defines externally authored rulesets and the condition
// evaluator that decides which of their actions fire for a recommendation.
package rules

import (
	"errors"
	"fmt"
)

// ErrUnknownOperand is returned when a condition references a name the
// resolver cannot supply. The whole recommendation fails fast rather than
// being silently skipped.
var ErrUnknownOperand = errors.New("rules: unknown operand")

// UseCase selects which ruleset applies to an evaluation run.
type UseCase string

const (
	// UseCaseEnter evaluates fresh recommendations for new positions.
	UseCaseEnter UseCase = "enter_market"

	// UseCaseManage re-evaluates recommendations against open positions.
	UseCaseManage UseCase = "manage_position"
)

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// ActionType tags an action configuration. The set is closed; dispatch is a
// switch, not a lookup table.
type ActionType string

const (
	ActionBuy              ActionType = "BUY"
	ActionSell             ActionType = "SELL"
	ActionClose            ActionType = "CLOSE"
	ActionAdjustTakeProfit ActionType = "ADJUST_TAKE_PROFIT"
	ActionAdjustStopLoss   ActionType = "ADJUST_STOP_LOSS"
	ActionIncreaseShare    ActionType = "INCREASE_SHARE"
	ActionDecreaseShare    ActionType = "DECREASE_SHARE"
	ActionEvaluationOnly   ActionType = "EVALUATION_ONLY"
)

// Condition compares a resolvable left operand against a right operand that
// may be a literal or another resolvable name. Conditions are stateless and
// re-evaluated fresh on every run.
type Condition struct {
	Left  string `yaml:"left"`
	Op    Op     `yaml:"op"`
	Right string `yaml:"right"`
}

// ActionConfig is the configured half of an action; the engine turns it into
// an executable action bound to the triggering recommendation.
type ActionConfig struct {
	Type ActionType `yaml:"type"`

	// Reference names the operand used as the base price for
	// ADJUST_TAKE_PROFIT / ADJUST_STOP_LOSS (default "recommendation.price").
	Reference string `yaml:"reference,omitempty"`

	// Percent is the TP/SL offset. Its sign is cosmetic; direction comes
	// from the long/short determination, never from the sign.
	Percent float64 `yaml:"percent,omitempty"`

	// Quantity is the share count for entry/adjustment actions.
	Quantity float64 `yaml:"quantity,omitempty"`

	// TakeProfitPct / StopLossPct, when both set on an entry action, make
	// the entry a bracket order.
	TakeProfitPct float64 `yaml:"take_profit_pct,omitempty"`
	StopLossPct   float64 `yaml:"stop_loss_pct,omitempty"`
}

// Rule is a conjunctive set of conditions plus the actions that fire when
// they all hold. Rules run strictly in sequence; evaluation stops at the
// first fired rule whose Continue flag is false.
type Rule struct {
	Name       string         `yaml:"name"`
	Conditions []Condition    `yaml:"conditions"`
	Actions    []ActionConfig `yaml:"actions"`
	Continue   bool           `yaml:"continue_processing"`
}

// Ruleset is an ordered rule sequence scoped to one use case. Read-only to
// the engine.
type Ruleset struct {
	ID      string  `yaml:"id"`
	UseCase UseCase `yaml:"use_case"`
	Rules   []Rule  `yaml:"rules"`
}

// Validate checks structural soundness of a ruleset before it is handed to
// the evaluator.
func (rs *Ruleset) Validate() error {
	if rs.ID == "" {
		return fmt.Errorf("ruleset id is required")
	}
	if rs.UseCase == "" {
		return fmt.Errorf("ruleset %s: use_case is required", rs.ID)
	}
	for i, r := range rs.Rules {
		if r.Name == "" {
			return fmt.Errorf("ruleset %s: rule %d has no name", rs.ID, i)
		}
		if len(r.Conditions) == 0 {
			return fmt.Errorf("ruleset %s: rule %s has no conditions", rs.ID, r.Name)
		}
		if len(r.Actions) == 0 {
			return fmt.Errorf("ruleset %s: rule %s has no actions", rs.ID, r.Name)
		}
		for _, c := range r.Conditions {
			switch c.Op {
			case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
			default:
				return fmt.Errorf("ruleset %s: rule %s: unknown operator %q", rs.ID, r.Name, c.Op)
			}
		}
		for _, a := range r.Actions {
			switch a.Type {
			case ActionBuy, ActionSell, ActionClose, ActionAdjustTakeProfit,
				ActionAdjustStopLoss, ActionIncreaseShare, ActionDecreaseShare,
				ActionEvaluationOnly:
			default:
				return fmt.Errorf("ruleset %s: rule %s: unknown action type %q", rs.ID, r.Name, a.Type)
			}
		}
	}
	return nil
}

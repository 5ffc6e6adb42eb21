package rules

import (
	"fmt"
	"strconv"
)

// Value is a resolved operand: either a number or a piece of text (e.g. the
// recommendation's action).
type Value struct {
	Num  float64
	Str  string
	Text bool
}

// Number wraps a numeric operand value.
func Number(n float64) Value { return Value{Num: n} }

// Text wraps a textual operand value.
func Text(s string) Value { return Value{Str: s, Text: true} }

func (v Value) String() string {
	if v.Text {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// Resolver supplies named operand values: recommendation fields, the live
// price, and position-derived values. Implemented by the engine.
type Resolver interface {
	Resolve(name string) (Value, error)
}

// ConditionTrace records one condition's resolved operands and outcome.
type ConditionTrace struct {
	Left       string `json:"left"`
	LeftValue  string `json:"left_value"`
	Op         Op     `json:"op"`
	Right      string `json:"right"`
	RightValue string `json:"right_value"`
	Holds      bool   `json:"holds"`
}

// RuleTrace records one rule's evaluation.
type RuleTrace struct {
	Rule       string           `json:"rule"`
	Fired      bool             `json:"fired"`
	Conditions []ConditionTrace `json:"conditions"`
}

// Fired pairs a fired rule with its trace so the executor can attach the
// evidence to every action result.
type Fired struct {
	Rule  *Rule
	Trace RuleTrace
}

// Evaluate runs the ruleset against the resolver. It returns the rules that
// fired (in sequence order) and the trace of every rule examined. Evaluation
// stops after the first fired rule with Continue == false; rules past that
// point are neither evaluated nor traced. The evaluator only reads state.
func Evaluate(rs *Ruleset, res Resolver) ([]Fired, []RuleTrace, error) {
	var fired []Fired
	var traces []RuleTrace

	for i := range rs.Rules {
		rule := &rs.Rules[i]

		trace := RuleTrace{Rule: rule.Name, Fired: true}
		for _, cond := range rule.Conditions {
			ct, err := evalCondition(cond, res)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			trace.Conditions = append(trace.Conditions, ct)
			if !ct.Holds {
				trace.Fired = false
				// Remaining conditions are still evaluated so the
				// trace shows the full picture.
			}
		}
		traces = append(traces, trace)

		if trace.Fired {
			fired = append(fired, Fired{Rule: rule, Trace: trace})
			if !rule.Continue {
				break
			}
		}
	}

	return fired, traces, nil
}

func evalCondition(c Condition, res Resolver) (ConditionTrace, error) {
	left, err := resolveOperand(c.Left, res)
	if err != nil {
		return ConditionTrace{}, err
	}
	right, err := resolveOperand(c.Right, res)
	if err != nil {
		return ConditionTrace{}, err
	}

	holds, err := compare(left, c.Op, right)
	if err != nil {
		return ConditionTrace{}, fmt.Errorf("%s %s %s: %w", c.Left, c.Op, c.Right, err)
	}

	return ConditionTrace{
		Left:       c.Left,
		LeftValue:  left.String(),
		Op:         c.Op,
		Right:      c.Right,
		RightValue: right.String(),
		Holds:      holds,
	}, nil
}

// resolveOperand turns an operand spec into a value. Numeric literals parse
// directly; quoted or ALL-CAPS bare words are text literals; everything else
// goes through the resolver.
func resolveOperand(spec string, res Resolver) (Value, error) {
	if spec == "" {
		return Value{}, fmt.Errorf("empty operand")
	}

	if n, err := strconv.ParseFloat(spec, 64); err == nil {
		return Number(n), nil
	}

	if len(spec) >= 2 && spec[0] == '\'' && spec[len(spec)-1] == '\'' {
		return Text(spec[1 : len(spec)-1]), nil
	}

	if isBareWord(spec) {
		return Text(spec), nil
	}

	return res.Resolve(spec)
}

// isBareWord reports whether spec looks like an enum literal such as BUY or
// SELL rather than a resolvable name like recommendation.confidence.
func isBareWord(spec string) bool {
	for _, r := range spec {
		if (r < 'A' || r > 'Z') && r != '_' {
			return false
		}
	}
	return true
}

func compare(left Value, op Op, right Value) (bool, error) {
	if left.Text || right.Text {
		if !left.Text || !right.Text {
			return false, fmt.Errorf("cannot compare text with number")
		}
		switch op {
		case OpEq:
			return left.Str == right.Str, nil
		case OpNe:
			return left.Str != right.Str, nil
		default:
			return false, fmt.Errorf("operator %q not valid for text operands", op)
		}
	}

	switch op {
	case OpEq:
		return left.Num == right.Num, nil
	case OpNe:
		return left.Num != right.Num, nil
	case OpGt:
		return left.Num > right.Num, nil
	case OpGte:
		return left.Num >= right.Num, nil
	case OpLt:
		return left.Num < right.Num, nil
	case OpLte:
		return left.Num <= right.Num, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

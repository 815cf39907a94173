// Package logic turns declarative logic rules into per-field state flags.
package logic

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/expr"
	"github.com/goliatone/go-formlogic/pkg/httpcond"
)

var ErrInvalidRule = errors.New("logic: invalid rule")

// Flag is one of the four state flags a rule can drive.
type Flag string

const (
	Hidden   Flag = "hidden"
	Disabled Flag = "disabled"
	Readonly Flag = "readonly"
	Required Flag = "required"
)

// Rule is a compiled logic rule: *StateRule or *DerivationRule.
type Rule interface {
	rule()
}

// StateRule drives a flag from a condition.
type StateRule struct {
	Flag Flag
	When condition.Condition
}

// DerivationRule computes a value and writes it to Target. Exactly one of
// Expression and HTTP is set. A nil When always applies.
type DerivationRule struct {
	Target     string
	Expression *expr.Program
	HTTP       *condition.HTTP
	When       condition.Condition
}

func (*StateRule) rule()      {}
func (*DerivationRule) rule() {}

// Deps returns what the derivation reads: its expression or request params
// plus its guard.
func (d *DerivationRule) Deps() condition.Deps {
	var deps condition.Deps
	if d.Expression != nil {
		deps.Merge(condition.ProgramDeps(d.Expression))
	}
	if d.HTTP != nil {
		deps.Merge(condition.Dependencies(d.HTTP))
	}
	if d.When != nil {
		deps.Merge(condition.Dependencies(d.When))
	}
	return deps
}

// Spec is the configuration form of a rule.
type Spec struct {
	Type        string           `json:"type" yaml:"type"`
	Condition   *condition.Spec  `json:"condition,omitempty" yaml:"condition,omitempty"`
	TargetField string           `json:"targetField,omitempty" yaml:"targetField,omitempty"`
	Expression  string           `json:"expression,omitempty" yaml:"expression,omitempty"`
	HTTP        *httpcond.Config `json:"http,omitempty" yaml:"http,omitempty"`
}

// Compile builds a rule. A derivation without targetField writes to the
// owning field.
func Compile(spec Spec) (Rule, error) {
	var when condition.Condition
	if spec.Condition != nil {
		c, err := condition.Compile(*spec.Condition)
		if err != nil {
			return nil, fmt.Errorf("%s rule: %w", spec.Type, err)
		}
		when = c
	}

	switch Flag(spec.Type) {
	case Hidden, Disabled, Readonly, Required:
		if when == nil {
			return nil, fmt.Errorf("%w: %s rule without condition", ErrInvalidRule, spec.Type)
		}
		return &StateRule{Flag: Flag(spec.Type), When: when}, nil
	}

	if spec.Type != "derivation" {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, spec.Type)
	}

	target := condition.SelfRef
	if spec.TargetField != "" {
		t, err := condition.NormalizeRef(spec.TargetField)
		if err != nil {
			return nil, fmt.Errorf("%w: target: %v", ErrInvalidRule, err)
		}
		target = t
	}
	rule := &DerivationRule{Target: target, When: when}

	switch {
	case spec.Expression != "" && spec.HTTP != nil:
		return nil, fmt.Errorf("%w: derivation has both expression and http", ErrInvalidRule)
	case spec.Expression != "":
		program, err := expr.Compile(spec.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: derivation: %v", ErrInvalidRule, err)
		}
		rule.Expression = program
	case spec.HTTP != nil:
		h, err := condition.NewHTTP(*spec.HTTP)
		if err != nil {
			return nil, fmt.Errorf("%w: derivation: %v", ErrInvalidRule, err)
		}
		rule.HTTP = h
	default:
		return nil, fmt.Errorf("%w: derivation needs an expression or http source", ErrInvalidRule)
	}
	return rule, nil
}

// CompileAll compiles rules in order, reporting the index of the first
// failure.
func CompileAll(specs []Spec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		r, err := Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("logic[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Derivations filters the derivation rules.
func Derivations(rules []Rule) []*DerivationRule {
	var out []*DerivationRule
	for _, r := range rules {
		if d, ok := r.(*DerivationRule); ok {
			out = append(out, d)
		}
	}
	return out
}

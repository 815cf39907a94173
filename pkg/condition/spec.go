package condition

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/goliatone/go-formlogic/pkg/expr"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/httpcond"
)

var (
	ErrUnknownKind     = errors.New("condition: unknown kind")
	ErrUnknownOperator = errors.New("condition: unknown operator")
	ErrInvalid         = errors.New("condition: invalid")
)

// Spec is the configuration form of a condition, as found in YAML or JSON
// field documents.
type Spec struct {
	Type       string           `json:"type" yaml:"type"`
	Value      any              `json:"value,omitempty" yaml:"value,omitempty"`
	FieldPath  string           `json:"fieldPath,omitempty" yaml:"fieldPath,omitempty"`
	Operator   string           `json:"operator,omitempty" yaml:"operator,omitempty"`
	Expression string           `json:"expression,omitempty" yaml:"expression,omitempty"`
	Conditions []Spec           `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	State      string           `json:"state,omitempty" yaml:"state,omitempty"`
	HTTP       *httpcond.Config `json:"http,omitempty" yaml:"http,omitempty"`
}

// Compile turns a Spec into an evaluable Condition. Expressions, regular
// expressions and HTTP templates are compiled here, once.
func Compile(spec Spec) (Condition, error) {
	switch Kind(spec.Type) {
	case KindBoolean:
		b, ok := spec.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: boolean condition needs a bool value, got %T", ErrInvalid, spec.Value)
		}
		return &Literal{Value: b}, nil

	case KindFieldValue:
		if spec.FieldPath == "" {
			return nil, fmt.Errorf("%w: fieldValue condition without fieldPath", ErrInvalid)
		}
		op, err := ParseOperator(spec.Operator)
		if err != nil {
			return nil, err
		}
		path, err := NormalizeRef(spec.FieldPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		fv := &FieldValue{Path: path, Operator: op, Value: spec.Value}
		if op == OpMatches {
			pattern, ok := spec.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: matches needs a string pattern", ErrInvalid)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalid, pattern, err)
			}
			fv.pattern = re
		}
		return fv, nil

	case KindExpression, "expression":
		program, err := expr.Compile(spec.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return &Expression{Program: program}, nil

	case KindAnd, KindOr:
		children := make([]Condition, 0, len(spec.Conditions))
		for i, child := range spec.Conditions {
			c, err := Compile(child)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", spec.Type, i, err)
			}
			children = append(children, c)
		}
		if Kind(spec.Type) == KindAnd {
			return &And{Conditions: children}, nil
		}
		return &Or{Conditions: children}, nil

	case KindFormState:
		state := FormStateKind(spec.State)
		if state == "" {
			if s, ok := spec.Value.(string); ok {
				state = FormStateKind(s)
			}
		}
		switch state {
		case FormInvalid, FormSubmitting, PageInvalid:
			return &FormState{State: state}, nil
		}
		return nil, fmt.Errorf("%w: form state %q", ErrInvalid, state)

	case KindHTTP:
		if spec.HTTP == nil {
			return nil, fmt.Errorf("%w: http condition without http config", ErrInvalid)
		}
		return NewHTTP(*spec.HTTP)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Type)
}

// NewHTTP compiles an HTTP condition from its config.
func NewHTTP(cfg httpcond.Config) (*HTTP, error) {
	tmpl, err := httpcond.Compile(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &HTTP{Config: tmpl.Config(), Template: tmpl, id: httpIDs.Add(1)}, nil
}

// MustCompile panics on error. Intended for tests and static tables.
func MustCompile(spec Spec) Condition {
	c, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// NormalizeRef canonicalizes a path while keeping a $self or $item prefix.
func NormalizeRef(raw string) (string, error) {
	for _, prefix := range []string{SelfRef, ItemRef} {
		if raw == prefix {
			return raw, nil
		}
		if len(raw) > len(prefix) && raw[:len(prefix)] == prefix && (raw[len(prefix)] == '.' || raw[len(prefix)] == '[') {
			rest := raw[len(prefix):]
			if rest[0] == '.' {
				rest = rest[1:]
			}
			p, err := fieldpath.Parse(rest)
			if err != nil {
				return "", err
			}
			return prefix + "." + p.String(), nil
		}
	}
	p, err := fieldpath.Parse(raw)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

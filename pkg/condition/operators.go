package condition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-formlogic/pkg/expr"
)

// Operator is a FieldValue comparison.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "notEquals"
	OpGreater        Operator = "greater"
	OpLess           Operator = "less"
	OpGreaterOrEqual Operator = "greaterOrEqual"
	OpLessOrEqual    Operator = "lessOrEqual"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
	OpMatches        Operator = "matches"
)

var knownOperators = map[Operator]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpGreater: {}, OpLess: {},
	OpGreaterOrEqual: {}, OpLessOrEqual: {}, OpContains: {},
	OpStartsWith: {}, OpEndsWith: {}, OpMatches: {},
}

// ParseOperator validates a configured operator name. An empty name means
// equals.
func ParseOperator(raw string) (Operator, error) {
	if raw == "" {
		return OpEquals, nil
	}
	op := Operator(raw)
	if _, ok := knownOperators[op]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, raw)
	}
	return op, nil
}

// Compare applies op to the actual value read from the form and the
// configured target. pattern is only consulted for OpMatches.
func Compare(op Operator, actual, target any, pattern *regexp.Regexp) bool {
	switch op {
	case OpEquals:
		return expr.LooseEqual(actual, target)
	case OpNotEquals:
		return !expr.LooseEqual(actual, target)
	case OpGreater:
		c, ok := compareOrdered(actual, target)
		return ok && c > 0
	case OpLess:
		c, ok := compareOrdered(actual, target)
		return ok && c < 0
	case OpGreaterOrEqual:
		c, ok := compareOrdered(actual, target)
		return ok && c >= 0
	case OpLessOrEqual:
		c, ok := compareOrdered(actual, target)
		return ok && c <= 0
	case OpContains:
		return compareContains(actual, target)
	case OpStartsWith:
		s, prefix, ok := bothStrings(actual, target)
		return ok && strings.HasPrefix(s, prefix)
	case OpEndsWith:
		s, suffix, ok := bothStrings(actual, target)
		return ok && strings.HasSuffix(s, suffix)
	case OpMatches:
		if actual == nil || pattern == nil {
			return false
		}
		return pattern.MatchString(expr.ToString(actual))
	default:
		return false
	}
}

// compareOrdered returns a three-way comparison. Numbers and numeric strings
// compare numerically; two non-numeric strings compare lexically; anything
// else (nil, booleans, composites) is incomparable.
func compareOrdered(a, b any) (int, bool) {
	if na, ok := orderedNumber(a); ok {
		if nb, ok := orderedNumber(b); ok {
			return threeWay(na, nb)
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func orderedNumber(v any) (float64, bool) {
	switch v.(type) {
	case nil, bool:
		return 0, false
	}
	return expr.ToNumber(v)
}

func threeWay(a, b float64) (int, bool) {
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	case a == b:
		return 0, true
	default:
		// NaN
		return 0, false
	}
}

func compareContains(actual, target any) bool {
	switch typed := actual.(type) {
	case string:
		if target == nil {
			return false
		}
		return strings.Contains(typed, expr.ToString(target))
	case []any:
		for _, item := range typed {
			if expr.LooseEqual(item, target) {
				return true
			}
		}
	case []string:
		for _, item := range typed {
			if expr.LooseEqual(item, target) {
				return true
			}
		}
	}
	return false
}

func bothStrings(actual, target any) (string, string, bool) {
	s, ok := actual.(string)
	if !ok {
		return "", "", false
	}
	t, ok := target.(string)
	return s, t, ok
}

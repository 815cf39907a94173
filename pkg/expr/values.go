package expr

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Truthy applies JavaScript truthiness: nil, false, 0, NaN and "" are
// falsy; everything else, including empty arrays and objects, is truthy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	if n, ok := numeric(value); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// ToNumber converts numbers, numeric strings and booleans to float64.
func ToNumber(value any) (float64, bool) {
	if n, ok := numeric(value); ok {
		return n, true
	}
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toNumberOrNaN(value any) float64 {
	if value == nil {
		return 0
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return 0
	}
	if n, ok := ToNumber(value); ok {
		return n
	}
	return math.NaN()
}

// numeric handles the Go numeric kinds only.
func numeric(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// IsNumber reports whether value is one of the Go numeric kinds.
func IsNumber(value any) bool {
	_, ok := numeric(value)
	return ok
}

// ToString renders a value the way string concatenation sees it. nil renders
// as the empty string so derived labels do not leak "undefined".
func ToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = ToString(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if n, ok := numeric(value); ok {
		if math.IsNaN(n) {
			return "NaN"
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(value)
}

// LooseEqual mirrors `==`: numbers compare numerically across Go kinds,
// numeric strings and booleans coerce against numbers, nil equals only nil.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if StrictEqual(a, b) {
		return true
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if aStr && bStr {
		return false
	}
	if isScalar(a) && isScalar(b) {
		an, aok := ToNumber(a)
		bn, bok := ToNumber(b)
		return aok && bok && an == bn
	}
	return false
}

// StrictEqual mirrors `===` with one relaxation: all Go numeric kinds are a
// single number type. Arrays and objects compare structurally.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	return IsNumber(v)
}

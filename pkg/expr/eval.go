package expr

import (
	"fmt"
	"math"
	"strings"
)

type node interface {
	eval(env Vars) (any, error)
}

// chainNode is implemented by member/index/call nodes so optional chaining
// can short-circuit the rest of the chain.
type chainNode interface {
	chain(env Vars) (value any, short bool, err error)
}

func evalChain(n node, env Vars) (any, bool, error) {
	if c, ok := n.(chainNode); ok {
		return c.chain(env)
	}
	v, err := n.eval(env)
	return v, false, err
}

type literalNode struct{ value any }

func (n literalNode) eval(Vars) (any, error) { return n.value, nil }

type identNode struct{ name string }

func (n identNode) eval(env Vars) (any, error) {
	if v, ok := env[n.name]; ok {
		return v, nil
	}
	// bare identifiers address top-level form values
	form, _ := env[RootForm].(map[string]any)
	return form[n.name], nil
}

type arrayNode struct{ items []node }

func (n arrayNode) eval(env Vars) (any, error) {
	out := make([]any, len(n.items))
	for i, item := range n.items {
		v, err := item.eval(env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type memberNode struct {
	object   node
	key      string
	optional bool
}

func (n memberNode) eval(env Vars) (any, error) {
	v, _, err := n.chain(env)
	return v, err
}

func (n memberNode) chain(env Vars) (any, bool, error) {
	obj, short, err := evalChain(n.object, env)
	if err != nil || short {
		return nil, short, err
	}
	if obj == nil {
		if n.optional {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("expr: cannot read property %q of undefined", n.key)
	}
	return property(obj, n.key), false, nil
}

type indexNode struct {
	object   node
	index    node
	optional bool
}

func (n indexNode) eval(env Vars) (any, error) {
	v, _, err := n.chain(env)
	return v, err
}

func (n indexNode) chain(env Vars) (any, bool, error) {
	obj, short, err := evalChain(n.object, env)
	if err != nil || short {
		return nil, short, err
	}
	if obj == nil {
		if n.optional {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("expr: cannot index undefined")
	}
	key, err := n.index.eval(env)
	if err != nil {
		return nil, false, err
	}
	return property(obj, ToString(key)), false, nil
}

type callNode struct {
	receiver node
	method   string
	args     []node
	optional bool
}

func (n callNode) eval(env Vars) (any, error) {
	v, _, err := n.chain(env)
	return v, err
}

func (n callNode) chain(env Vars) (any, bool, error) {
	recv, short, err := evalChain(n.receiver, env)
	if err != nil || short {
		return nil, short, err
	}
	if recv == nil {
		if n.optional {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("expr: cannot call %s on undefined", n.method)
	}
	args := make([]any, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return nil, false, err
		}
		args[i] = v
	}
	out, err := methods[n.method](recv, args)
	return out, false, err
}

type unaryNode struct {
	op    string
	inner node
}

func (n unaryNode) eval(env Vars) (any, error) {
	v, err := n.inner.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !Truthy(v), nil
	case "-":
		return -toNumberOrNaN(v), nil
	default:
		return toNumberOrNaN(v), nil
	}
}

type logicalNode struct {
	op          string
	left, right node
}

func (n logicalNode) eval(env Vars) (any, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "&&":
		if !Truthy(left) {
			return left, nil
		}
	case "||":
		if Truthy(left) {
			return left, nil
		}
	case "??":
		if left != nil {
			return left, nil
		}
	}
	return n.right.eval(env)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(env Vars) (any, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return LooseEqual(left, right), nil
	case "!=":
		return !LooseEqual(left, right), nil
	case "===":
		return StrictEqual(left, right), nil
	case "!==":
		return !StrictEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compareOrdered(n.op, left, right), nil
	case "+":
		if isStringy(left) || isStringy(right) {
			return ToString(left) + ToString(right), nil
		}
		return toNumberOrNaN(left) + toNumberOrNaN(right), nil
	case "-":
		return toNumberOrNaN(left) - toNumberOrNaN(right), nil
	case "*":
		return toNumberOrNaN(left) * toNumberOrNaN(right), nil
	case "/":
		return toNumberOrNaN(left) / toNumberOrNaN(right), nil
	case "%":
		return math.Mod(toNumberOrNaN(left), toNumberOrNaN(right)), nil
	}
	return nil, fmt.Errorf("expr: unknown operator %q", n.op)
}

type conditionalNode struct {
	cond, then, otherwise node
}

func (n conditionalNode) eval(env Vars) (any, error) {
	c, err := n.cond.eval(env)
	if err != nil {
		return nil, err
	}
	if Truthy(c) {
		return n.then.eval(env)
	}
	return n.otherwise.eval(env)
}

func compareOrdered(op string, left, right any) bool {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case "<=":
			return ls <= rs
		case ">":
			return ls > rs
		default:
			return ls >= rs
		}
	}
	l, r := toNumberOrNaN(left), toNumberOrNaN(right)
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

func isStringy(v any) bool {
	_, ok := v.(string)
	return ok
}

func property(obj any, key string) any {
	switch typed := obj.(type) {
	case map[string]any:
		return typed[key]
	case []any:
		if key == "length" {
			return float64(len(typed))
		}
		return indexAt(typed, key)
	case string:
		if key == "length" {
			return float64(len([]rune(typed)))
		}
	}
	return nil
}

func indexAt(items []any, key string) any {
	n, ok := ToNumber(key)
	if !ok || n < 0 || n != math.Trunc(n) || n >= float64(len(items)) {
		return nil
	}
	return items[int(n)]
}

// maxFixedDigits bounds toFixed precision.
const maxFixedDigits = 100

type methodFunc func(recv any, args []any) (any, error)

// methods is the closed set of side-effect free helpers callable on values.
var methods = map[string]methodFunc{
	"includes": func(recv any, args []any) (any, error) {
		needle := argAt(args, 0)
		switch typed := recv.(type) {
		case string:
			return strings.Contains(typed, ToString(needle)), nil
		case []any:
			for _, item := range typed {
				if StrictEqual(item, needle) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, fmt.Errorf("expr: includes is not defined for %T", recv)
	},
	"startsWith": stringMethod(func(s string, args []any) any {
		return strings.HasPrefix(s, ToString(argAt(args, 0)))
	}),
	"endsWith": stringMethod(func(s string, args []any) any {
		return strings.HasSuffix(s, ToString(argAt(args, 0)))
	}),
	"toUpperCase": stringMethod(func(s string, _ []any) any { return strings.ToUpper(s) }),
	"toLowerCase": stringMethod(func(s string, _ []any) any { return strings.ToLower(s) }),
	"trim":        stringMethod(func(s string, _ []any) any { return strings.TrimSpace(s) }),
	"toString":    func(recv any, _ []any) (any, error) { return ToString(recv), nil },
	"toFixed": func(recv any, args []any) (any, error) {
		digits := 0
		if n, ok := ToNumber(argAt(args, 0)); ok {
			if n < 0 || n > maxFixedDigits || math.IsNaN(n) {
				return nil, fmt.Errorf("expr: toFixed digits %v out of range 0..%d", n, maxFixedDigits)
			}
			digits = int(n)
		}
		return fmt.Sprintf("%.*f", digits, toNumberOrNaN(recv)), nil
	},
	"join": func(recv any, args []any) (any, error) {
		items, ok := recv.([]any)
		if !ok {
			return nil, fmt.Errorf("expr: join is not defined for %T", recv)
		}
		sep := ","
		if len(args) > 0 {
			sep = ToString(args[0])
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = ToString(item)
		}
		return strings.Join(parts, sep), nil
	},
	"sum": func(recv any, args []any) (any, error) {
		items, ok := recv.([]any)
		if !ok {
			return nil, fmt.Errorf("expr: sum is not defined for %T", recv)
		}
		key := ""
		if len(args) > 0 {
			key = ToString(args[0])
		}
		total := 0.0
		for _, item := range items {
			if key != "" {
				item = property(item, key)
			}
			if n, ok := ToNumber(item); ok {
				total += n
			}
		}
		return total, nil
	},
}

func stringMethod(fn func(string, []any) any) methodFunc {
	return func(recv any, args []any) (any, error) {
		s, ok := recv.(string)
		if !ok {
			return nil, fmt.Errorf("expr: string method called on %T", recv)
		}
		return fn(s, args), nil
	}
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

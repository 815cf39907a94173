// Package validation holds canonical validator entries, the built-in
// checks and a registry for custom ones.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/expr"
)

// Built-in validator kinds. These are also the shorthand keys on field
// definitions.
const (
	KindRequired  = "required"
	KindEmail     = "email"
	KindMin       = "min"
	KindMax       = "max"
	KindMinLength = "minLength"
	KindMaxLength = "maxLength"
	KindPattern   = "pattern"
)

var (
	ErrUnknownValidator = errors.New("validation: unknown validator")
	ErrInvalidParams    = errors.New("validation: invalid params")
)

// Validator is the canonical, configuration-level entry. Thresholds live in
// Params["value"]; pattern rules keep their expression in Params["pattern"].
type Validator struct {
	Kind    string          `json:"kind" yaml:"kind"`
	Params  map[string]any  `json:"params,omitempty" yaml:"params,omitempty"`
	Message string          `json:"message,omitempty" yaml:"message,omitempty"`
	When    *condition.Spec `json:"when,omitempty" yaml:"when,omitempty"`
}

// Func reports whether value passes. Non-required checks are only called
// for non-empty values.
type Func func(value any, params map[string]any) bool

// Def is a registered validator kind.
type Def struct {
	Check Func
	// Message renders the default failure message.
	Message func(params map[string]any) string
	// Prepare validates params at compile time and may return a normalized
	// copy.
	Prepare func(params map[string]any) (map[string]any, error)
}

// Registry maps validator kinds to definitions. It is safe for concurrent
// use; the latest registration of a kind wins.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Def
}

// NewRegistry returns a registry with the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Def)}
	r.registerBuiltins()
	return r
}

// Register adds or replaces a kind.
func (r *Registry) Register(kind string, def Def) {
	kind = strings.TrimSpace(kind)
	if r == nil || kind == "" || def.Check == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[kind] = def
}

// Lookup returns the definition of kind.
func (r *Registry) Lookup(kind string) (Def, bool) {
	if r == nil {
		return Def{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// Kinds lists registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Rule is a compiled validator.
type Rule struct {
	Kind    string
	Params  map[string]any
	Message string
	When    condition.Condition

	check Func
}

// Compile resolves v against the registry.
func (r *Registry) Compile(v Validator) (*Rule, error) {
	def, ok := r.Lookup(v.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, v.Kind)
	}
	params := v.Params
	if def.Prepare != nil {
		prepared, err := def.Prepare(params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.Kind, err)
		}
		params = prepared
	}
	rule := &Rule{Kind: v.Kind, Params: params, Message: v.Message, check: def.Check}
	if rule.Message == "" && def.Message != nil {
		rule.Message = def.Message(params)
	}
	if v.When != nil {
		when, err := condition.Compile(*v.When)
		if err != nil {
			return nil, fmt.Errorf("%s: when: %w", v.Kind, err)
		}
		rule.When = when
	}
	return rule, nil
}

// Issue is one failed validator.
type Issue struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Validate runs rules against the value at snap.FieldPath. Conditional rules
// apply only while their condition holds. Empty values only fail required.
func Validate(rules []*Rule, snap condition.Snapshot) []Issue {
	value := snap.Lookup(condition.SelfRef)
	empty := IsEmpty(value)

	var issues []Issue
	for _, rule := range rules {
		if rule.When != nil && !condition.Evaluate(rule.When, snap) {
			continue
		}
		if empty && rule.Kind != KindRequired {
			continue
		}
		if !rule.check(value, rule.Params) {
			issues = append(issues, Issue{Path: snap.FieldPath, Kind: rule.Kind, Message: rule.Message})
		}
	}
	return issues
}

// RequiredIssue builds the issue reported when a field is required through
// its runtime state rather than a validator.
func RequiredIssue(path string) Issue {
	return Issue{Path: path, Kind: KindRequired, Message: requiredMessage(nil)}
}

// IsEmpty treats nil, blank strings and empty collections as empty.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func (r *Registry) registerBuiltins() {
	r.defs[KindRequired] = Def{
		Check:   func(v any, _ map[string]any) bool { return !IsEmpty(v) && v != false },
		Message: requiredMessage,
	}
	r.defs[KindEmail] = Def{
		Check: func(v any, _ map[string]any) bool {
			s, ok := v.(string)
			return ok && emailPattern.MatchString(s)
		},
		Message: func(map[string]any) string { return "must be a valid email address" },
	}
	r.defs[KindMin] = Def{
		Check: func(v any, p map[string]any) bool {
			n, ok := expr.ToNumber(v)
			return ok && n >= p["value"].(float64)
		},
		Message: func(p map[string]any) string { return "must be at least " + expr.ToString(p["value"]) },
		Prepare: numberParam,
	}
	r.defs[KindMax] = Def{
		Check: func(v any, p map[string]any) bool {
			n, ok := expr.ToNumber(v)
			return ok && n <= p["value"].(float64)
		},
		Message: func(p map[string]any) string { return "must be at most " + expr.ToString(p["value"]) },
		Prepare: numberParam,
	}
	r.defs[KindMinLength] = Def{
		Check: func(v any, p map[string]any) bool {
			n, ok := length(v)
			return ok && float64(n) >= p["value"].(float64)
		},
		Message: func(p map[string]any) string {
			return "must be at least " + expr.ToString(p["value"]) + " characters"
		},
		Prepare: numberParam,
	}
	r.defs[KindMaxLength] = Def{
		Check: func(v any, p map[string]any) bool {
			n, ok := length(v)
			return ok && float64(n) <= p["value"].(float64)
		},
		Message: func(p map[string]any) string {
			return "must be at most " + expr.ToString(p["value"]) + " characters"
		},
		Prepare: numberParam,
	}
	r.defs[KindPattern] = Def{
		Check: func(v any, p map[string]any) bool {
			return p["regexp"].(*regexp.Regexp).MatchString(expr.ToString(v))
		},
		Message: func(p map[string]any) string { return "must match " + expr.ToString(p["pattern"]) },
		Prepare: patternParam,
	}
}

func requiredMessage(map[string]any) string { return "is required" }

func numberParam(params map[string]any) (map[string]any, error) {
	n, ok := expr.ToNumber(params["value"])
	if _, isBool := params["value"].(bool); !ok || isBool {
		return nil, fmt.Errorf("%w: numeric value required, got %v", ErrInvalidParams, params["value"])
	}
	return map[string]any{"value": n}, nil
}

func patternParam(params map[string]any) (map[string]any, error) {
	raw, ok := params["pattern"].(string)
	if !ok {
		raw, ok = params["value"].(string)
	}
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: pattern required", ErrInvalidParams)
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return map[string]any{"pattern": raw, "regexp": re}, nil
}

func length(v any) (int, bool) {
	switch typed := v.(type) {
	case string:
		return utf8.RuneCountInString(typed), true
	case []any:
		return len(typed), true
	}
	return 0, false
}

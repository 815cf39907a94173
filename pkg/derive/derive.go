// Package derive orders derivations and runs them as a single settle pass.
package derive

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/logic"
)

var ErrCyclicDerivation = errors.New("derive: cyclic derivation")

// Derivation is a derivation rule bound to a field instance.
type Derivation struct {
	// Owner is the instance path of the field declaring the rule.
	Owner string
	Scope condition.Scope
	Rule  *logic.DerivationRule

	// Target and Reads are resolved instance paths.
	Target   string
	Reads    []string
	AnyValue bool
}

// Bind resolves a rule against a field instance.
func Bind(scope condition.Scope, rule *logic.DerivationRule) *Derivation {
	deps := rule.Deps()
	return &Derivation{
		Owner:    scope.FieldPath,
		Scope:    scope,
		Rule:     rule,
		Target:   scope.Resolve(rule.Target),
		Reads:    scope.ResolveAll(deps.Paths),
		AnyValue: deps.AnyValue,
	}
}

func (d *Derivation) reads(path string) bool {
	for _, r := range d.Reads {
		if fieldpath.Overlaps(path, r) {
			return true
		}
	}
	return false
}

// Engine holds derivations in evaluation order.
type Engine struct {
	order    []*Derivation
	warnings []string
}

// New orders derivations topologically: A runs before B when A's target
// overlaps something B reads. Ties keep declaration order. Derivations with
// unbounded reads cannot be placed in the graph and run last, in
// declaration order.
//
// On a cycle the returned error wraps ErrCyclicDerivation and names the
// chain; the returned engine still runs every derivation outside the cycle.
func New(derivations []*Derivation) (*Engine, error) {
	var (
		static  []int
		dynamic []*Derivation
	)
	for i, d := range derivations {
		if d.AnyValue {
			dynamic = append(dynamic, d)
			continue
		}
		static = append(static, i)
	}

	edges := make(map[int][]int)
	indegree := make(map[int]int, len(static))
	for _, i := range static {
		indegree[i] += 0
		for _, j := range static {
			if derivations[j].reads(derivations[i].Target) {
				edges[i] = append(edges[i], j)
				indegree[j]++
			}
		}
	}

	var (
		ready []int
		order []*Derivation
		done  = make(map[int]bool, len(static))
	)
	for _, i := range static {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		done[i] = true
		order = append(order, derivations[i])
		for _, j := range edges[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	engine := &Engine{order: append(order, dynamic...), warnings: unchecked(derivations, dynamic)}
	if len(order) == len(static) {
		return engine, nil
	}

	var remaining []int
	for _, i := range static {
		if !done[i] {
			remaining = append(remaining, i)
		}
	}
	return engine, fmt.Errorf("%w: %s", ErrCyclicDerivation, describeCycle(derivations, edges, remaining))
}

// unchecked lists the feedback paths through unbounded-read derivations that
// the graph cannot rule out. Each such derivation still runs once per pass.
func unchecked(all, dynamic []*Derivation) []string {
	var out []string
	for i, d := range dynamic {
		for _, other := range dynamic[i+1:] {
			out = append(out, fmt.Sprintf("%s and %s read unbounded values and may feed each other", d.Target, other.Target))
		}
		for _, reader := range all {
			if reader != d && !reader.AnyValue && reader.reads(d.Target) {
				out = append(out, fmt.Sprintf("%s reads %s, which is derived from unbounded values", reader.Target, d.Target))
			}
		}
	}
	return out
}

// describeCycle walks edges inside the unresolved set until a node repeats.
func describeCycle(ds []*Derivation, edges map[int][]int, remaining []int) string {
	inSet := make(map[int]bool, len(remaining))
	for _, i := range remaining {
		inSet[i] = true
	}
	seen := make(map[int]int)
	var chain []int
	current := remaining[0]
	for {
		if at, ok := seen[current]; ok {
			chain = append(chain[at:], current)
			break
		}
		seen[current] = len(chain)
		chain = append(chain, current)
		next := -1
		for _, j := range edges[current] {
			if inSet[j] {
				next = j
				break
			}
		}
		if next < 0 {
			break
		}
		current = next
	}
	names := make([]string, len(chain))
	for i, idx := range chain {
		names[i] = ds[idx].Target
	}
	return strings.Join(names, " -> ")
}

// Warnings describes possible cycles through derivations with unbounded
// reads. They are not checked by New.
func (e *Engine) Warnings() []string {
	return append([]string(nil), e.warnings...)
}

// Order returns the derivations in evaluation order.
func (e *Engine) Order() []*Derivation {
	return append([]*Derivation(nil), e.order...)
}

// Env is what a pass needs from the form.
type Env interface {
	Get(path string) any
	Set(path string, value any) error
	Snapshot(scope condition.Scope) condition.Snapshot
}

// Result reports one pass.
type Result struct {
	Written []string
	// Succeeded lists owners whose derivations evaluated without error.
	Succeeded []string
	Errors    map[string]error
}

// Run walks the order once. A derivation runs when force is set, when its
// reads are unbounded, or when one of its reads overlaps a changed path;
// targets written earlier in the pass count as changed. A false guard skips
// the derivation. The target is written only when the value differs. Errors
// keep the previous value and are returned per owner field.
func (e *Engine) Run(env Env, changed []string, force bool) Result {
	return e.run(env, changed, func(*Derivation) bool { return force })
}

// RunOwners forces the derivations declared by owners, typically after an
// HTTP source of theirs resolved, and lets the writes cascade.
func (e *Engine) RunOwners(env Env, owners []string) Result {
	set := make(map[string]bool, len(owners))
	for _, o := range owners {
		set[o] = true
	}
	return e.run(env, nil, func(d *Derivation) bool { return set[d.Owner] })
}

// Settle combines Run and RunOwners: derivations declared by owners are
// forced alongside those reading a changed path.
func (e *Engine) Settle(env Env, changed, owners []string, force bool) Result {
	set := make(map[string]bool, len(owners))
	for _, o := range owners {
		set[o] = true
	}
	return e.run(env, changed, func(d *Derivation) bool { return force || set[d.Owner] })
}

func (e *Engine) run(env Env, changed []string, forced func(*Derivation) bool) Result {
	var res Result
	dirty := append([]string(nil), changed...)

	for _, d := range e.order {
		if !forced(d) && !overlapsAny(d, dirty) && !(d.AnyValue && len(dirty) > 0) {
			continue
		}
		snap := env.Snapshot(d.Scope)
		if d.Rule.When != nil && !condition.Evaluate(d.Rule.When, snap) {
			continue
		}

		value, err := compute(d, snap)
		if err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]error)
			}
			res.Errors[d.Owner] = err
			snap.Log().Warn("derivation failed", "field", d.Owner, "target", d.Target, "error", err)
			continue
		}
		res.Succeeded = append(res.Succeeded, d.Owner)
		if fieldpath.Equal(env.Get(d.Target), value) {
			continue
		}
		if err := env.Set(d.Target, value); err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]error)
			}
			res.Errors[d.Owner] = err
			continue
		}
		res.Written = append(res.Written, d.Target)
		dirty = append(dirty, d.Target)
	}
	return res
}

func compute(d *Derivation, snap condition.Snapshot) (any, error) {
	switch {
	case d.Rule.Expression != nil:
		return d.Rule.Expression.Eval(snap.Vars())
	case d.Rule.HTTP != nil:
		if snap.Async == nil {
			return d.Rule.HTTP.Config.PendingValue, nil
		}
		return snap.Async.Resolve(d.Rule.HTTP, snap), nil
	}
	return nil, fmt.Errorf("derive: %s has no source", d.Target)
}

func overlapsAny(d *Derivation, paths []string) bool {
	for _, p := range paths {
		if d.reads(p) {
			return true
		}
	}
	return false
}

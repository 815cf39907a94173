package logic

import (
	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
)

// State is the runtime state of one field instance. It is recomputed from
// scratch on every evaluation.
type State struct {
	Hidden   bool `json:"hidden"`
	Disabled bool `json:"disabled"`
	Readonly bool `json:"readonly"`
	Required bool `json:"required"`
}

// Get reads one flag.
func (s State) Get(flag Flag) bool {
	switch flag {
	case Hidden:
		return s.Hidden
	case Disabled:
		return s.Disabled
	case Readonly:
		return s.Readonly
	case Required:
		return s.Required
	}
	return false
}

// With returns s with flag raised.
func (s State) With(flag Flag) State {
	switch flag {
	case Hidden:
		s.Hidden = true
	case Disabled:
		s.Disabled = true
	case Readonly:
		s.Readonly = true
	case Required:
		s.Required = true
	}
	return s
}

// Inherit ORs the flags a container passes to its descendants. Required is
// not inherited.
func (s State) Inherit(parent State) State {
	s.Hidden = s.Hidden || parent.Hidden
	s.Disabled = s.Disabled || parent.Disabled
	s.Readonly = s.Readonly || parent.Readonly
	return s
}

// Changes describes what happened since the last evaluation.
type Changes struct {
	// Paths are instance paths whose values changed.
	Paths []string
	// FormStatus is set when form or page validity or submission changed.
	FormStatus bool
	// Resolved is set when an HTTP condition owned by the field resolved.
	Resolved bool
	// All forces re-evaluation.
	All bool
}

// Applier evaluates the state rules of one field instance.
type Applier struct {
	scope  condition.Scope
	static State
	rules  []*StateRule
	deps   condition.Deps
}

// NewApplier binds the state rules among rules to a field instance. Rule
// paths with $self and $item prefixes are resolved against scope once, here.
func NewApplier(scope condition.Scope, static State, rules []Rule) *Applier {
	a := &Applier{scope: scope, static: static}
	for _, r := range rules {
		sr, ok := r.(*StateRule)
		if !ok {
			continue
		}
		a.rules = append(a.rules, sr)
		a.deps.Merge(condition.Dependencies(sr.When))
	}
	a.deps.Paths = scope.ResolveAll(a.deps.Paths)
	return a
}

// Apply computes the state. Same-kind rules combine with OR, together with
// the static flag of that kind.
func (a *Applier) Apply(snap condition.Snapshot) State {
	state := a.static
	for _, r := range a.rules {
		if state.Get(r.Flag) {
			continue
		}
		if condition.Evaluate(r.When, snap) {
			state = state.With(r.Flag)
		}
	}
	return state
}

// Affected reports whether ch can change the result of Apply: a changed path
// overlapping a referenced one, any value change for unbounded reads, a form
// status change for FormState rules, a resolution for HTTP rules.
func (a *Applier) Affected(ch Changes) bool {
	if len(a.rules) == 0 {
		return false
	}
	if ch.All {
		return true
	}
	if ch.Resolved && a.deps.HTTP {
		return true
	}
	if ch.FormStatus && a.deps.FormState {
		return true
	}
	if len(ch.Paths) == 0 {
		return false
	}
	if a.deps.AnyValue {
		return true
	}
	for _, changed := range ch.Paths {
		for _, read := range a.deps.Paths {
			if fieldpath.Overlaps(changed, read) {
				return true
			}
		}
	}
	return false
}

// Deps returns the resolved dependencies.
func (a *Applier) Deps() condition.Deps { return a.deps }

// HasRules reports whether any rule is bound.
func (a *Applier) HasRules() bool { return len(a.rules) > 0 }

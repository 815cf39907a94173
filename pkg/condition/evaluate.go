package condition

import (
	"github.com/goliatone/go-formlogic/pkg/expr"
)

// Evaluate returns the boolean value of c for snap. Non-HTTP conditions are
// pure. A nil condition is false.
func Evaluate(c Condition, snap Snapshot) bool {
	switch typed := c.(type) {
	case nil:
		return false
	case *Literal:
		return typed.Value
	case *FieldValue:
		return Compare(typed.Operator, snap.Lookup(typed.Path), typed.Value, typed.pattern)
	case *Expression:
		ok, err := typed.Program.EvalBool(snap.Vars())
		if err != nil {
			snap.Log().Warn("expression condition failed",
				"field", snap.FieldPath,
				"expression", typed.Program.Source(),
				"error", err,
			)
			return false
		}
		return ok
	case *And:
		for _, child := range typed.Conditions {
			if !Evaluate(child, snap) {
				return false
			}
		}
		return true
	case *Or:
		for _, child := range typed.Conditions {
			if Evaluate(child, snap) {
				return true
			}
		}
		return false
	case *FormState:
		switch typed.State {
		case FormInvalid:
			return snap.Form.Invalid
		case FormSubmitting:
			return snap.Form.Submitting
		case PageInvalid:
			return snap.Form.PageInvalid
		}
		return false
	case *HTTP:
		if snap.Async == nil {
			return expr.Truthy(typed.Config.PendingValue)
		}
		return expr.Truthy(snap.Async.Resolve(typed, snap))
	default:
		return false
	}
}

// Deps describes what a condition reads.
type Deps struct {
	// Paths are template paths, possibly prefixed with $self or $item.
	Paths []string
	// AnyValue is set when a read cannot be narrowed, such as a bare
	// formValue in an expression.
	AnyValue  bool
	FormState bool
	HTTP      bool
}

// Merge folds other into d.
func (d *Deps) Merge(other Deps) {
	d.Paths = appendUnique(d.Paths, other.Paths...)
	d.AnyValue = d.AnyValue || other.AnyValue
	d.FormState = d.FormState || other.FormState
	d.HTTP = d.HTTP || other.HTTP
}

// Dependencies walks c and collects its reads.
func Dependencies(c Condition) Deps {
	var deps Deps
	Walk(c, func(node Condition) {
		switch typed := node.(type) {
		case *FieldValue:
			deps.Paths = appendUnique(deps.Paths, typed.Path)
		case *Expression:
			deps.Merge(ProgramDeps(typed.Program))
		case *FormState:
			deps.FormState = true
		case *HTTP:
			deps.HTTP = true
			for _, p := range typed.programs() {
				deps.Merge(ProgramDeps(p))
			}
		}
	})
	return deps
}

// ProgramDeps maps expression references onto dependency paths.
func ProgramDeps(p *expr.Program) Deps {
	var deps Deps
	for _, ref := range p.References() {
		switch ref.Root {
		case expr.RootField:
			deps.Paths = appendUnique(deps.Paths, joinRef(SelfRef, ref.Path))
		case expr.RootItem:
			deps.Paths = appendUnique(deps.Paths, joinRef(ItemRef, ref.Path))
		default:
			if ref.Path == "" {
				deps.AnyValue = true
				continue
			}
			deps.Paths = appendUnique(deps.Paths, ref.Path)
		}
	}
	return deps
}

func joinRef(prefix, path string) string {
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

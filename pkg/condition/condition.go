// Package condition models declarative conditions and evaluates them against
// a form value snapshot.
//
// Condition is a closed union: Literal, FieldValue, Expression, And, Or,
// FormState and HTTP. Adding a kind means adding a variant and one case in
// Evaluate and Dependencies.
package condition

import (
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/goliatone/go-formlogic/pkg/expr"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/httpcond"
)

// Kind tags a condition variant in configuration.
type Kind string

const (
	KindBoolean    Kind = "boolean"
	KindFieldValue Kind = "fieldValue"
	KindExpression Kind = "javascript"
	KindAnd        Kind = "and"
	KindOr         Kind = "or"
	KindFormState  Kind = "formState"
	KindHTTP       Kind = "http"
)

// FormStateKind names an aggregate form flag.
type FormStateKind string

const (
	FormInvalid    FormStateKind = "formInvalid"
	FormSubmitting FormStateKind = "formSubmitting"
	PageInvalid    FormStateKind = "pageInvalid"
)

// Reference prefixes used in paths that are resolved per field instance.
const (
	SelfRef = "$self"
	ItemRef = "$item"
)

// Condition is implemented by every variant.
type Condition interface {
	Kind() Kind
}

// Literal is a constant.
type Literal struct {
	Value bool
}

// FieldValue compares the value at Path with Value.
type FieldValue struct {
	Path     string
	Operator Operator
	Value    any

	pattern *regexp.Regexp
}

// Expression evaluates a compiled expression for its truthiness.
type Expression struct {
	Program *expr.Program
}

// And is true when every child is true. Empty is true.
type And struct {
	Conditions []Condition
}

// Or is true when any child is true. Empty is false.
type Or struct {
	Conditions []Condition
}

// FormState reads an aggregate flag from the owning form.
type FormState struct {
	State FormStateKind
}

// HTTP resolves asynchronously through an AsyncSource.
type HTTP struct {
	Config   httpcond.Config
	Template *httpcond.Template

	id uint64
}

func (*Literal) Kind() Kind    { return KindBoolean }
func (*FieldValue) Kind() Kind { return KindFieldValue }
func (*Expression) Kind() Kind { return KindExpression }
func (*And) Kind() Kind        { return KindAnd }
func (*Or) Kind() Kind         { return KindOr }
func (*FormState) Kind() Kind  { return KindFormState }
func (*HTTP) Kind() Kind       { return KindHTTP }

var httpIDs atomic.Uint64

// ID identifies the compiled condition. Instances of the same field template
// share it, so resolvers combine it with the field path.
func (h *HTTP) ID() uint64 { return h.id }

// Request builds the outbound request for the current snapshot.
func (h *HTTP) Request(snap Snapshot) (httpcond.Request, error) {
	return h.Template.Build(snap.Vars())
}

func (h *HTTP) programs() []*expr.Program {
	if h.Template == nil {
		return nil
	}
	return h.Template.Programs()
}

// FormStatus carries aggregate flags for FormState conditions.
type FormStatus struct {
	Invalid     bool
	Submitting  bool
	PageInvalid bool
}

// AsyncSource supplies the current value of an HTTP condition, scheduling
// resolution as needed. Implementations must not block.
type AsyncSource interface {
	Resolve(c *HTTP, snap Snapshot) any
}

// Snapshot is everything a condition may read.
type Snapshot struct {
	Values    map[string]any
	FieldPath string
	ItemPath  string
	Form      FormStatus
	Async     AsyncSource
	Logger    *slog.Logger
}

// Scope returns the path scope of the snapshot.
func (s Snapshot) Scope() Scope {
	return Scope{FieldPath: s.FieldPath, ItemPath: s.ItemPath}
}

// Lookup reads a path, resolving $self and $item references.
func (s Snapshot) Lookup(path string) any {
	return fieldpath.Lookup(s.Values, s.Scope().Resolve(path))
}

// Vars binds the expression roots for this snapshot.
func (s Snapshot) Vars() expr.Vars {
	vars := expr.Vars{
		expr.RootForm:  s.Values,
		expr.RootField: fieldpath.Lookup(s.Values, s.FieldPath),
	}
	if s.ItemPath != "" {
		vars[expr.RootItem] = fieldpath.Lookup(s.Values, s.ItemPath)
	} else {
		vars[expr.RootItem] = nil
	}
	return vars
}

// Log returns the snapshot logger or the default one.
func (s Snapshot) Log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Scope resolves instance-relative references.
type Scope struct {
	FieldPath string
	ItemPath  string
}

// Resolve rewrites $self and $item prefixes into absolute paths.
func (sc Scope) Resolve(path string) string {
	switch {
	case path == SelfRef:
		return sc.FieldPath
	case strings.HasPrefix(path, SelfRef+"."):
		return fieldpath.Join(sc.FieldPath, path[len(SelfRef)+1:])
	case path == ItemRef:
		return sc.ItemPath
	case strings.HasPrefix(path, ItemRef+"."):
		return fieldpath.Join(sc.ItemPath, path[len(ItemRef)+1:])
	default:
		return path
	}
}

// ResolveAll maps Resolve over paths.
func (sc Scope) ResolveAll(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = sc.Resolve(p)
	}
	return out
}

// Walk visits c and every nested condition depth-first.
func Walk(c Condition, fn func(Condition)) {
	if c == nil {
		return
	}
	fn(c)
	switch typed := c.(type) {
	case *And:
		for _, child := range typed.Conditions {
			Walk(child, fn)
		}
	case *Or:
		for _, child := range typed.Conditions {
			Walk(child, fn)
		}
	}
}

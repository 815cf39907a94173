package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/derive"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/submission"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

var (
	ErrUnknownSchema  = errors.New("schema: unknown schema reference")
	ErrSchemaCycle    = errors.New("schema: schema reference cycle")
	ErrDuplicatePath  = errors.New("schema: duplicate field path")
	ErrFormStateScope = errors.New("schema: formState conditions are only valid on buttons")
	ErrInvalidField   = errors.New("schema: invalid field")
)

// CompositionError ties a composition failure to a field.
type CompositionError struct {
	Path string
	Err  error
}

func (e *CompositionError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("field %q: %v", e.Path, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// Node is a composed field. Paths are templates: inside arrays the item
// index is ItemSegment.
type Node struct {
	Def    *FieldDef
	Key    string
	Type   string
	Path   string
	Parent *Node

	Children []*Node
	// Page is the index of the enclosing page, or -1.
	Page int

	Static     logic.State
	Validators []*validation.Rule
	Rules      []logic.Rule
	Exclusion  submission.Exclusion
}

// Valued reports whether the node owns a value in the form tree.
func (n *Node) Valued() bool { return !Valueless(n.Type) }

// IsArray reports whether the node repeats its children per item.
func (n *Node) IsArray() bool { return n.Type == TypeArray }

// ItemPath returns the template path of the innermost enclosing array item,
// or "" outside arrays.
func (n *Node) ItemPath() string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.IsArray() {
			return fieldpath.Join(p.Path, ItemSegment)
		}
	}
	return ""
}

// Scope is the template scope used for static analysis.
func (n *Node) Scope() condition.Scope {
	return condition.Scope{FieldPath: n.Path, ItemPath: n.ItemPath()}
}

// Form is the composed, immutable form definition. It is safe to share
// between form instances.
type Form struct {
	Roots     []*Node
	Exclusion submission.Exclusion
	PageCount int

	nodes  []*Node
	byPath map[string]*Node
}

// Nodes returns every node depth-first in declaration order.
func (f *Form) Nodes() []*Node { return append([]*Node(nil), f.nodes...) }

// Node looks a node up by template path.
func (f *Form) Node(path string) (*Node, bool) {
	n, ok := f.byPath[path]
	return n, ok
}

// Options configures composition.
type Options struct {
	// Registry resolves validator kinds. Defaults to the built-ins.
	Registry *validation.Registry
}

type composer struct {
	doc  *Document
	reg  *validation.Registry
	form *Form
	errs []error
}

// Compose builds the executable form. Every problem found is reported; the
// result is nil whenever the error is not.
func Compose(doc *Document, opts Options) (*Form, error) {
	if doc == nil {
		return nil, errors.New("schema: document is nil")
	}
	reg := opts.Registry
	if reg == nil {
		reg = validation.NewRegistry()
	}
	c := &composer{
		doc:  doc,
		reg:  reg,
		form: &Form{Exclusion: doc.Exclusion, byPath: make(map[string]*Node)},
	}

	pages := 0
	for _, def := range doc.Fields {
		if def.Type == TypePage {
			pages++
		}
	}
	if pages > 0 && pages != len(doc.Fields) {
		c.fail("", fmt.Errorf("%w: pages must be the only root fields", ErrInvalidField))
	}
	c.form.PageCount = pages

	for i := range doc.Fields {
		page := -1
		if pages > 0 {
			page = i
		}
		if n := c.node(&doc.Fields[i], nil, "", i, page); n != nil {
			c.form.Roots = append(c.form.Roots, n)
		}
	}

	c.checkDerivations()

	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	return c.form, nil
}

func (c *composer) fail(path string, err error) {
	c.errs = append(c.errs, &CompositionError{Path: path, Err: err})
}

// node composes def whose value attaches under base.
func (c *composer) node(def *FieldDef, parent *Node, base string, index, page int) *Node {
	key := strings.TrimSpace(def.Key)
	if key == "" && Valueless(def.Type) {
		key = fmt.Sprintf("%s%d", def.Type, index)
	}
	if key == "" && !(parent != nil && parent.IsArray()) {
		c.fail(base, fmt.Errorf("%w: missing key", ErrInvalidField))
		return nil
	}
	if def.Type == TypePage && parent != nil {
		c.fail(fieldpath.Join(base, key), fmt.Errorf("%w: pages cannot be nested", ErrInvalidField))
		return nil
	}

	path := fieldpath.Join(base, key)
	if key != "" {
		p, err := fieldpath.Parse(key)
		if err != nil {
			c.fail(path, err)
			return nil
		}
		path = fieldpath.Join(base, p.String())
	}

	n := &Node{
		Def:       def,
		Key:       key,
		Type:      def.Type,
		Path:      path,
		Parent:    parent,
		Page:      page,
		Exclusion: def.Exclusion,
		Static: logic.State{
			Hidden:   def.Hidden,
			Disabled: def.Disabled,
			Readonly: def.Readonly,
			Required: def.Required,
		},
	}
	if _, dup := c.form.byPath[path]; dup {
		c.fail(path, ErrDuplicatePath)
		return nil
	}
	c.form.byPath[path] = n
	c.form.nodes = append(c.form.nodes, n)

	c.rules(n)

	childBase := path
	switch {
	case Flattens(def.Type):
		childBase = base
	case def.Type == TypeArray:
		childBase = fieldpath.Join(path, ItemSegment)
	}
	if def.Type == TypeArray && len(def.Fields) > 1 {
		for _, child := range def.Fields {
			if strings.TrimSpace(child.Key) == "" && !Valueless(child.Type) {
				c.fail(path, fmt.Errorf("%w: keyless item field must be the only array child", ErrInvalidField))
				break
			}
		}
	}
	for i := range def.Fields {
		if child := c.node(&def.Fields[i], n, childBase, i, page); child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n
}

// rules composes validators and logic in order: shorthand, validators,
// referenced schemas depth-first, logic.
func (c *composer) rules(n *Node) {
	def := n.Def
	c.addValidators(n, def.Shorthand.Lower())
	c.addValidators(n, def.Validators)

	state := &resolveState{inStack: make(map[string]struct{})}
	seen := make(map[string]bool)
	for _, ref := range def.Schemas {
		c.expand(n, ref, state, seen)
	}

	c.addLogic(n, def.Logic)
	c.checkFormState(n)
}

func (c *composer) expand(n *Node, ref string, state *resolveState, seen map[string]bool) {
	ref = strings.TrimSpace(ref)
	if state.contains(ref) {
		chain := append(append([]string(nil), state.stack...), ref)
		c.fail(n.Path, fmt.Errorf("%w: %s", ErrSchemaCycle, strings.Join(chain, " -> ")))
		return
	}
	if seen[ref] {
		return
	}
	s, ok := c.doc.Schemas[ref]
	if !ok {
		c.fail(n.Path, fmt.Errorf("%w: %q", ErrUnknownSchema, ref))
		return
	}
	seen[ref] = true

	state.push(ref)
	defer state.pop(ref)

	c.addValidators(n, s.Shorthand.Lower())
	if s.Required {
		n.Static.Required = true
	}
	c.addValidators(n, s.Validators)
	for _, nested := range s.Schemas {
		c.expand(n, nested, state, seen)
	}
	c.addLogic(n, s.Logic)
}

func (c *composer) addValidators(n *Node, validators []validation.Validator) {
	for _, v := range validators {
		rule, err := c.reg.Compile(v)
		if err != nil {
			c.fail(n.Path, err)
			continue
		}
		n.Validators = append(n.Validators, rule)
	}
}

func (c *composer) addLogic(n *Node, specs []logic.Spec) {
	for i, spec := range specs {
		rule, err := logic.Compile(spec)
		if err != nil {
			c.fail(n.Path, fmt.Errorf("logic[%d]: %w", i, err))
			continue
		}
		n.Rules = append(n.Rules, rule)
	}
}

func (c *composer) checkFormState(n *Node) {
	if n.Type == TypeButton {
		return
	}
	var conds []condition.Condition
	for _, r := range n.Rules {
		switch typed := r.(type) {
		case *logic.StateRule:
			conds = append(conds, typed.When)
		case *logic.DerivationRule:
			conds = append(conds, typed.When)
		}
	}
	for _, v := range n.Validators {
		conds = append(conds, v.When)
	}
	for _, cond := range conds {
		found := false
		condition.Walk(cond, func(inner condition.Condition) {
			if inner.Kind() == condition.KindFormState {
				found = true
			}
		})
		if found {
			c.fail(n.Path, ErrFormStateScope)
			return
		}
	}
}

// checkDerivations runs cycle detection over the template paths.
func (c *composer) checkDerivations() {
	var bound []*derive.Derivation
	for _, n := range c.form.nodes {
		for _, d := range logic.Derivations(n.Rules) {
			bound = append(bound, derive.Bind(n.Scope(), d))
		}
	}
	if _, err := derive.New(bound); err != nil {
		c.fail("", err)
	}
}

type resolveState struct {
	stack   []string
	inStack map[string]struct{}
}

func (s *resolveState) push(ref string) {
	s.stack = append(s.stack, ref)
	s.inStack[ref] = struct{}{}
}

func (s *resolveState) pop(ref string) {
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	delete(s.inStack, ref)
}

func (s *resolveState) contains(ref string) bool {
	_, ok := s.inStack[ref]
	return ok
}

// Package expr compiles the restricted expression language used by
// expression conditions and derivations.
//
// Supported syntax:
//   - literals: numbers, 'single' and "double" quoted strings, true, false,
//     null, undefined, array literals
//   - property access: `a.b`, `a[0]`, `a["k"]`, optional chaining `a?.b`,
//     `a?.[0]`
//   - operators: `! - +` (unary), `* / %`, `+ -`, `< <= > >=`,
//     `== != === !==`, `&&`, `||`, `??`, ternary `c ? a : b`
//   - side-effect free methods: includes, startsWith, endsWith,
//     toUpperCase, toLowerCase, trim, toString, toFixed, join, and
//     sum for arrays (`lines.sum('total')` adds one property per item)
//
// Expressions are evaluated against Vars. The bound roots are formValue (the
// whole form), fieldValue (the owning field's value) and item (the enclosing
// array item). Any other bare identifier reads the top-level form value of
// the same name, so `firstName + " " + lastName` works as expected.
//
// Because the grammar is closed, every read can be enumerated at compile
// time; see Program.References.
package expr

import (
	"strings"

	"github.com/goliatone/go-formlogic/pkg/fieldpath"
)

// Bound root names.
const (
	RootForm  = "formValue"
	RootField = "fieldValue"
	RootItem  = "item"
)

// Vars binds root names to values for one evaluation.
type Vars map[string]any

// Reference is a statically known read. Path is relative to Root and uses
// the canonical dotted form; an empty Path means the whole root.
type Reference struct {
	Root string
	Path string
}

// Program is a compiled expression. It is immutable and safe for concurrent
// evaluation.
type Program struct {
	source string
	root   node
	refs   []Reference
}

// Compile parses source once.
func Compile(source string) (*Program, error) {
	source = strings.TrimSpace(source)
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	root, err := parse(tokens)
	if err != nil {
		return nil, err
	}
	return &Program{source: source, root: root, refs: collectReferences(root)}, nil
}

// MustCompile is Compile that panics on error, for static expressions.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the trimmed expression text.
func (p *Program) Source() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Eval runs the program. Runtime errors (for example reading a property of
// undefined without optional chaining) are returned, never panicked.
func (p *Program) Eval(vars Vars) (any, error) {
	if vars == nil {
		vars = Vars{}
	}
	return p.root.eval(vars)
}

// EvalBool runs the program and applies truthiness.
func (p *Program) EvalBool(vars Vars) (bool, error) {
	v, err := p.Eval(vars)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// References lists the reads the program performs, de-duplicated and in
// first-seen order. A computed index whose key is not a literal truncates the
// reference at the container, which still over-approximates the read.
func (p *Program) References() []Reference {
	if p == nil {
		return nil
	}
	return append([]Reference(nil), p.refs...)
}

func collectReferences(root node) []Reference {
	var (
		out  []Reference
		seen = make(map[Reference]struct{})
	)
	add := func(ref Reference) {
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}

	var walk func(n node)
	walk = func(n node) {
		if ref, ok := staticChain(n); ok {
			add(ref)
			// computed keys inside the chain still need their own reads
			walkChainIndexes(n, walk)
			return
		}
		switch typed := n.(type) {
		case arrayNode:
			for _, item := range typed.items {
				walk(item)
			}
		case unaryNode:
			walk(typed.inner)
		case binaryNode:
			walk(typed.left)
			walk(typed.right)
		case logicalNode:
			walk(typed.left)
			walk(typed.right)
		case conditionalNode:
			walk(typed.cond)
			walk(typed.then)
			walk(typed.otherwise)
		case callNode:
			walk(typed.receiver)
			for _, arg := range typed.args {
				walk(arg)
			}
		case memberNode:
			walk(typed.object)
		case indexNode:
			walk(typed.object)
			walk(typed.index)
		}
	}
	walk(root)
	return out
}

// staticChain resolves a member/index chain rooted at an identifier into a
// Reference, stopping at the first computed key.
func staticChain(n node) (Reference, bool) {
	var keys []string
	current := n
	for {
		switch typed := current.(type) {
		case identNode:
			return referenceFor(typed.name, reverse(keys)), true
		case memberNode:
			keys = append(keys, typed.key)
			current = typed.object
		case indexNode:
			if lit, ok := typed.index.(literalNode); ok && lit.value != nil {
				keys = append(keys, ToString(lit.value))
			} else {
				// drop everything below the computed key
				keys = keys[:0]
			}
			current = typed.object
		case callNode:
			keys = keys[:0]
			current = typed.receiver
		default:
			return Reference{}, false
		}
	}
}

func walkChainIndexes(n node, walk func(node)) {
	for {
		switch typed := n.(type) {
		case memberNode:
			n = typed.object
		case indexNode:
			if _, ok := typed.index.(literalNode); !ok {
				walk(typed.index)
			}
			n = typed.object
		case callNode:
			for _, arg := range typed.args {
				walk(arg)
			}
			n = typed.receiver
		default:
			return
		}
	}
}

func referenceFor(name string, keys []string) Reference {
	switch name {
	case RootForm, RootField, RootItem:
		return Reference{Root: name, Path: joinKeys(keys)}
	default:
		return Reference{Root: RootForm, Path: joinKeys(append([]string{name}, keys...))}
	}
}

func joinKeys(keys []string) string {
	path := ""
	for _, k := range keys {
		if k == "length" {
			// .length reads the container itself
			break
		}
		path = fieldpath.Join(path, k)
	}
	return path
}

func reverse(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[len(keys)-1-i] = k
	}
	return out
}

package form

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/derive"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/schema"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

// instance is a node bound to concrete paths. Array items multiply the
// nodes below an array.
type instance struct {
	node   *schema.Node
	path   string
	item   string
	parent *instance

	children []*instance
	items    int

	applier     *logic.Applier
	derivations []*derive.Derivation

	own    logic.State
	state  logic.State
	issues []validation.Issue
	derr   error
	// slots are resolver slot ids used by this instance.
	slots map[string]struct{}
	gone  bool
}

func (i *instance) scope() condition.Scope {
	return condition.Scope{FieldPath: i.path, ItemPath: i.item}
}

// instantiate binds n below parent. tmpl and concrete map the template
// prefix of the enclosing array item onto its concrete path.
func (f *Form) instantiate(n *schema.Node, parent *instance, tmpl, concrete string) *instance {
	path := n.Path
	item := ""
	if tmpl != "" {
		path = concrete + strings.TrimPrefix(n.Path, tmpl)
		item = concrete
	}

	inst := &instance{node: n, path: path, item: item, parent: parent, own: n.Static}
	scope := inst.scope()
	inst.applier = logic.NewApplier(scope, n.Static, n.Rules)
	for _, d := range logic.Derivations(n.Rules) {
		inst.derivations = append(inst.derivations, derive.Bind(scope, d))
	}

	if n.IsArray() {
		inst.items = len(asSlice(fieldpath.Lookup(f.values, path)))
		f.instantiateItems(inst, 0)
		return inst
	}
	for _, child := range n.Children {
		inst.children = append(inst.children, f.instantiate(child, inst, tmpl, concrete))
	}
	return inst
}

func (f *Form) instantiateItems(arr *instance, from int) {
	itemTmpl := fieldpath.Join(arr.node.Path, schema.ItemSegment)
	for idx := from; idx < arr.items; idx++ {
		itemPath := fieldpath.Join(arr.path, strconv.Itoa(idx))
		for _, child := range arr.node.Children {
			arr.children = append(arr.children, f.instantiate(child, arr, itemTmpl, itemPath))
		}
	}
}

// syncArrays rebuilds the items of arrays whose length no longer matches
// their value. It returns the new instances.
func (f *Form) syncArrays(changed []string, all bool) []*instance {
	var (
		fresh   []*instance
		rebuilt bool
	)
	for _, inst := range f.order {
		if inst.gone || !inst.node.IsArray() {
			continue
		}
		if !all && !touches(inst.path, changed) {
			continue
		}
		n := len(asSlice(fieldpath.Lookup(f.values, inst.path)))
		if n == inst.items {
			continue
		}
		for _, child := range inst.children {
			f.detach(child)
		}
		inst.children = nil
		inst.items = n
		rebuilt = true
		f.instantiateItems(inst, 0)
		for _, child := range inst.children {
			walk(child, func(i *instance) { fresh = append(fresh, i) })
		}
	}
	if rebuilt {
		f.reindex()
	}
	return fresh
}

func (f *Form) detach(inst *instance) {
	walk(inst, func(i *instance) {
		i.gone = true
		for id := range i.slots {
			f.resolver.Forget(id)
		}
	})
}

// reindex rebuilds the lookup tables and the derivation engine after the
// instance tree changed.
func (f *Form) reindex() {
	f.order = f.order[:0]
	f.byPath = make(map[string]*instance, len(f.byPath))
	var derivations []*derive.Derivation
	for _, root := range f.roots {
		walk(root, func(i *instance) {
			f.order = append(f.order, i)
			f.byPath[i.path] = i
			derivations = append(derivations, i.derivations...)
		})
	}
	engine, err := derive.New(derivations)
	if err != nil {
		f.logger.Error("derivation order", "error", err)
	}
	for _, warning := range engine.Warnings() {
		f.logger.Warn("derivation order", "warning", warning)
	}
	f.engine = engine
	f.engineErr = err
}

func walk(inst *instance, fn func(*instance)) {
	fn(inst)
	for _, child := range inst.children {
		walk(child, fn)
	}
}

func touches(path string, changed []string) bool {
	for _, c := range changed {
		if fieldpath.Overlaps(path, c) {
			return true
		}
	}
	return false
}

func asSlice(v any) []any {
	items, _ := v.([]any)
	return items
}

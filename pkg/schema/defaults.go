package schema

import (
	"strings"

	"github.com/goliatone/go-formlogic/pkg/fieldpath"
)

// Defaults returns the initial value tree built from default values outside
// arrays. Arrays contribute their own default, if any, as a whole.
func (f *Form) Defaults() map[string]any {
	out := make(map[string]any)
	for _, n := range f.nodes {
		if !n.Valued() || n.Def.DefaultValue == nil || strings.Contains(n.Path, ItemSegment) {
			continue
		}
		if _, exists := fieldpath.Get(out, n.Path); exists {
			continue
		}
		_ = fieldpath.Set(out, n.Path, fieldpath.Clone(n.Def.DefaultValue))
	}
	return out
}

// ItemDefaults builds the value of a new item of array node n.
func (n *Node) ItemDefaults() any {
	if !n.IsArray() {
		return nil
	}
	for _, child := range n.Children {
		if child.Key == "" {
			return fieldpath.Clone(child.Def.DefaultValue)
		}
	}
	item := make(map[string]any)
	collectDefaults(n.Children, fieldpath.Join(n.Path, ItemSegment), item)
	return item
}

func collectDefaults(nodes []*Node, base string, out map[string]any) {
	for _, n := range nodes {
		if Flattens(n.Type) {
			collectDefaults(n.Children, base, out)
			continue
		}
		if !n.Valued() {
			continue
		}
		rel := strings.TrimPrefix(n.Path, base+".")
		switch {
		case n.Def.DefaultValue != nil:
			_ = fieldpath.Set(out, rel, fieldpath.Clone(n.Def.DefaultValue))
		case n.IsArray():
			_ = fieldpath.Set(out, rel, []any{})
		case n.Type == TypeGroup:
			collectDefaults(n.Children, base, out)
		}
	}
}

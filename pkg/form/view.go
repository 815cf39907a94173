package form

import (
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/schema"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

// KindDerivation marks issues raised by a failing derivation.
const KindDerivation = "derivation"

// FieldView is what a rendering layer needs to draw one field instance.
type FieldView struct {
	Path  string `json:"path"`
	Key   string `json:"key"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`

	// Description and Options are copied from the field definition.
	Description string          `json:"description,omitempty"`
	Options     []schema.Option `json:"options,omitempty"`

	Value any         `json:"value,omitempty"`
	State logic.State `json:"state"`
	// Errors are the messages of Issues.
	Errors []string           `json:"errors,omitempty"`
	Issues []validation.Issue `json:"issues,omitempty"`
}

// Field returns the view of one field instance.
func (f *Form) Field(path string) (FieldView, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.byPath[fieldpath.Normalize(path)]
	if !ok {
		return FieldView{}, false
	}
	return f.view(inst), true
}

// Fields returns every field instance depth-first in declaration order.
func (f *Form) Fields() []FieldView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FieldView, 0, len(f.order))
	for _, inst := range f.order {
		out = append(out, f.view(inst))
	}
	return out
}

// Errors returns the validation issues that make the form invalid.
func (f *Form) Errors() []validation.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []validation.Issue
	for _, inst := range f.order {
		if len(inst.issues) > 0 && f.counts(inst) {
			out = append(out, inst.issues...)
		}
	}
	return out
}

func (f *Form) view(inst *instance) FieldView {
	v := FieldView{
		Path:        inst.path,
		Key:         inst.node.Key,
		Type:        inst.node.Type,
		Label:       inst.node.Def.Label,
		Description: inst.node.Def.Description,
		Options:     inst.node.Def.Options,
		State:       inst.state,
	}
	if inst.node.Valued() {
		v.Value = fieldpath.Clone(fieldpath.Lookup(f.values, inst.path))
	}
	v.Issues = append(v.Issues, inst.issues...)
	if inst.derr != nil {
		v.Issues = append(v.Issues, validation.Issue{Path: inst.path, Kind: KindDerivation, Message: inst.derr.Error()})
	}
	for _, issue := range v.Issues {
		v.Errors = append(v.Errors, issue.Message)
	}
	return v
}

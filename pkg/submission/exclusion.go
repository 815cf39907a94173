// Package submission computes the value object emitted when a form is
// submitted.
package submission

// Exclusion controls which field values are stripped from submissions.
// Nil entries defer to the next tier.
type Exclusion struct {
	ExcludeValueIfHidden   *bool `json:"excludeValueIfHidden,omitempty" yaml:"excludeValueIfHidden,omitempty"`
	ExcludeValueIfDisabled *bool `json:"excludeValueIfDisabled,omitempty" yaml:"excludeValueIfDisabled,omitempty"`
	ExcludeValueIfReadonly *bool `json:"excludeValueIfReadonly,omitempty" yaml:"excludeValueIfReadonly,omitempty"`
}

// Resolved is an Exclusion with every tier applied.
type Resolved struct {
	Hidden   bool
	Disabled bool
	Readonly bool
}

// Bool is a helper for building Exclusion literals.
func Bool(v bool) *bool { return &v }

// Resolve applies field > form > global precedence. Anything still unset
// defaults to true.
func Resolve(field, form, global Exclusion) Resolved {
	return Resolved{
		Hidden:   pick(field.ExcludeValueIfHidden, form.ExcludeValueIfHidden, global.ExcludeValueIfHidden),
		Disabled: pick(field.ExcludeValueIfDisabled, form.ExcludeValueIfDisabled, global.ExcludeValueIfDisabled),
		Readonly: pick(field.ExcludeValueIfReadonly, form.ExcludeValueIfReadonly, global.ExcludeValueIfReadonly),
	}
}

func pick(tiers ...*bool) bool {
	for _, v := range tiers {
		if v != nil {
			return *v
		}
	}
	return true
}

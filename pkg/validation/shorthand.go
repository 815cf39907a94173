package validation

// Shorthand carries the inline validator keys of a field or schema.
type Shorthand struct {
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Email     bool     `json:"email,omitempty" yaml:"email,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Lower converts shorthand keys into canonical validators in fixed order:
// required, email, min, max, minLength, maxLength, pattern.
func (s Shorthand) Lower() []Validator {
	var out []Validator
	if s.Required {
		out = append(out, Validator{Kind: KindRequired})
	}
	if s.Email {
		out = append(out, Validator{Kind: KindEmail})
	}
	if s.Min != nil {
		out = append(out, Validator{Kind: KindMin, Params: map[string]any{"value": *s.Min}})
	}
	if s.Max != nil {
		out = append(out, Validator{Kind: KindMax, Params: map[string]any{"value": *s.Max}})
	}
	if s.MinLength != nil {
		out = append(out, Validator{Kind: KindMinLength, Params: map[string]any{"value": *s.MinLength}})
	}
	if s.MaxLength != nil {
		out = append(out, Validator{Kind: KindMaxLength, Params: map[string]any{"value": *s.MaxLength}})
	}
	if s.Pattern != "" {
		out = append(out, Validator{Kind: KindPattern, Params: map[string]any{"pattern": s.Pattern}})
	}
	return out
}

// Empty reports whether no shorthand key is set.
func (s Shorthand) Empty() bool {
	return len(s.Lower()) == 0
}

// Package schema holds the declarative form definition and composes it into
// per-field executable rule sets.
package schema

import (
	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/submission"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

// Container and special field types.
const (
	TypePage   = "page"
	TypeRow    = "row"
	TypeGroup  = "group"
	TypeArray  = "array"
	TypeButton = "button"
)

// ItemSegment stands in for the array index in template paths.
const ItemSegment = "*"

// Option is one choice of a select-like field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// FieldDef is the static definition of one field or container.
type FieldDef struct {
	Key          string         `json:"key" yaml:"key"`
	Type         string         `json:"type" yaml:"type"`
	Label        string         `json:"label,omitempty" yaml:"label,omitempty"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultValue any            `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Options      []Option       `json:"options,omitempty" yaml:"options,omitempty"`
	Props        map[string]any `json:"props,omitempty" yaml:"props,omitempty"`

	Hidden   bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Readonly bool `json:"readonly,omitempty" yaml:"readonly,omitempty"`

	validation.Shorthand `yaml:",inline"`
	submission.Exclusion `yaml:",inline"`

	Validators []validation.Validator `json:"validators,omitempty" yaml:"validators,omitempty"`
	Schemas    []string               `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Logic      []logic.Spec           `json:"logic,omitempty" yaml:"logic,omitempty"`

	// Fields are the children of a container, or the item template of an
	// array.
	Fields []FieldDef `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Schema is a named, reusable bundle of validators and logic.
type Schema struct {
	validation.Shorthand `yaml:",inline"`

	Validators []validation.Validator `json:"validators,omitempty" yaml:"validators,omitempty"`
	Schemas    []string               `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Logic      []logic.Spec           `json:"logic,omitempty" yaml:"logic,omitempty"`
}

// Document is a complete form definition file.
type Document struct {
	Schemas   map[string]Schema    `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Fields    []FieldDef           `json:"fields" yaml:"fields"`
	Exclusion submission.Exclusion `json:"exclusion,omitempty" yaml:"exclusion,omitempty"`
}

// Valueless reports whether fields of typ contribute no value of their own.
func Valueless(typ string) bool {
	switch typ {
	case TypePage, TypeRow, TypeButton:
		return true
	}
	return false
}

// Flattens reports whether children of typ attach to the parent path.
func Flattens(typ string) bool {
	return typ == TypePage || typ == TypeRow
}

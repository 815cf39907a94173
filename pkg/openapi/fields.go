package openapi

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formlogic/pkg/schema"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

// Scalar field types produced by the import.
const (
	TypeText     = "text"
	TypeEmail    = "email"
	TypeDate     = "date"
	TypeNumber   = "number"
	TypeCheckbox = "checkbox"
	TypeSelect   = "select"
)

// Fields loads data and maps the request body schema of operationID to
// field definitions.
func Fields(ctx context.Context, data []byte, operationID string, opts ...Option) ([]schema.FieldDef, error) {
	doc, err := Load(ctx, data, opts...)
	if err != nil {
		return nil, err
	}
	return FieldsFor(doc, operationID)
}

// FieldsFor maps the request body of operationID in an already loaded
// document.
func FieldsFor(doc *openapi3.T, operationID string) ([]schema.FieldDef, error) {
	ref, err := Operation(doc, operationID)
	if err != nil {
		return nil, err
	}
	body, err := RequestSchema(ref.Op)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, operationID)
	}
	if body.Value == nil || !isObject(merged(body.Value)) {
		return nil, fmt.Errorf("openapi: request body of %s is not an object schema", operationID)
	}
	c := converter{seen: make(map[*openapi3.Schema]bool)}
	return c.properties(body.Value), nil
}

// Document wraps the imported fields in a form document.
func Document(ctx context.Context, data []byte, operationID string, opts ...Option) (schema.Document, error) {
	fields, err := Fields(ctx, data, operationID, opts...)
	if err != nil {
		return schema.Document{}, err
	}
	return schema.Document{Fields: fields}, nil
}

type converter struct {
	// seen guards recursive references on the current descent.
	seen map[*openapi3.Schema]bool
}

// merged folds allOf members into one schema.
func merged(s *openapi3.Schema) *openapi3.Schema {
	if s == nil || len(s.AllOf) == 0 {
		return s
	}
	out := *s
	out.AllOf = nil
	out.Properties = make(openapi3.Schemas, len(s.Properties))
	for k, v := range s.Properties {
		out.Properties[k] = v
	}
	out.Required = append([]string(nil), s.Required...)
	for _, member := range s.AllOf {
		if member == nil || member.Value == nil {
			continue
		}
		m := merged(member.Value)
		if out.Type == nil || len(out.Type.Slice()) == 0 {
			out.Type = m.Type
		}
		for k, v := range m.Properties {
			if _, ok := out.Properties[k]; !ok {
				out.Properties[k] = v
			}
		}
		out.Required = append(out.Required, m.Required...)
	}
	return &out
}

// properties maps the properties of an object schema sorted by name.
// Properties that refer back to a schema on the current descent are
// skipped.
func (c converter) properties(raw *openapi3.Schema) []schema.FieldDef {
	if c.seen[raw] {
		return nil
	}
	c.seen[raw] = true
	defer delete(c.seen, raw)
	s := merged(raw)

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]schema.FieldDef, 0, len(names))
	for _, name := range names {
		ref := s.Properties[name]
		if ref == nil || ref.Value == nil || c.seen[ref.Value] {
			continue
		}
		def := c.field(ref.Value, required[name])
		def.Key = name
		if def.Label == "" {
			def.Label = humanize(name)
		}
		out = append(out, def)
	}
	return out
}

func (c converter) field(raw *openapi3.Schema, required bool) schema.FieldDef {
	s := merged(raw)
	def := schema.FieldDef{
		Label:        s.Title,
		Description:  s.Description,
		DefaultValue: s.Default,
		Readonly:     s.ReadOnly,
	}

	switch {
	case isObject(s):
		def.Type = schema.TypeGroup
		def.Fields = c.properties(raw)
		return def
	case schemaType(s) == openapi3.TypeArray:
		def.Type = schema.TypeArray
		def.Required = required
		if s.Items != nil && s.Items.Value != nil && !c.seen[s.Items.Value] {
			if item := s.Items.Value; isObject(merged(item)) {
				def.Fields = c.properties(item)
			} else {
				def.Fields = []schema.FieldDef{c.field(item, false)}
			}
		}
		return def
	}

	def.Type = scalarType(s)
	def.Shorthand = shorthand(s, required)
	for _, v := range s.Enum {
		def.Options = append(def.Options, schema.Option{Label: fmt.Sprint(v), Value: v})
	}
	return def
}

func shorthand(s *openapi3.Schema, required bool) validation.Shorthand {
	sh := validation.Shorthand{
		Required: required,
		Email:    s.Format == "email",
		Pattern:  s.Pattern,
	}
	if s.Min != nil {
		v := *s.Min
		sh.Min = &v
	}
	if s.Max != nil {
		v := *s.Max
		sh.Max = &v
	}
	if s.MinLength > 0 {
		v := int(s.MinLength)
		sh.MinLength = &v
	}
	if s.MaxLength != nil {
		v := int(*s.MaxLength)
		sh.MaxLength = &v
	}
	return sh
}

func scalarType(s *openapi3.Schema) string {
	if len(s.Enum) > 0 {
		return TypeSelect
	}
	switch schemaType(s) {
	case openapi3.TypeInteger, openapi3.TypeNumber:
		return TypeNumber
	case openapi3.TypeBoolean:
		return TypeCheckbox
	}
	switch s.Format {
	case "email":
		return TypeEmail
	case "date", "date-time":
		return TypeDate
	}
	return TypeText
}

func isObject(s *openapi3.Schema) bool {
	t := schemaType(s)
	return t == openapi3.TypeObject || (t == "" && len(s.Properties) > 0)
}

// schemaType returns the first non-null type.
func schemaType(s *openapi3.Schema) string {
	if s == nil || s.Type == nil {
		return ""
	}
	for _, t := range s.Type.Slice() {
		if t != "null" {
			return t
		}
	}
	return ""
}

// humanize turns camelCase and snake_case keys into labels.
func humanize(name string) string {
	var b strings.Builder
	prev := rune(0)
	for i, r := range name {
		switch {
		case r == '_' || r == '-':
			r = ' '
		case i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteByte(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

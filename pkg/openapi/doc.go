// Package openapi imports form field definitions from the request body of an
// OpenAPI operation. Documents are parsed with kin-openapi; callers only see
// schema.FieldDef values.
package openapi

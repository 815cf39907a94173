package openapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

var (
	ErrOperationNotFound = errors.New("openapi: operation not found")
	ErrNoRequestBody     = errors.New("openapi: operation has no request body schema")
)

var methodOrder = []string{"GET", "PUT", "POST", "DELETE", "PATCH", "HEAD", "OPTIONS", "TRACE"}

// OperationRef names one operation of a document.
type OperationRef struct {
	ID     string
	Method string
	Path   string
	Op     *openapi3.Operation
}

// Operations lists the operations of doc sorted by path and method.
// Operations without an operationId get "method:path".
func Operations(doc *openapi3.T) []OperationRef {
	if doc == nil || doc.Paths == nil {
		return nil
	}
	items := doc.Paths.Map()
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []OperationRef
	for _, p := range paths {
		item := items[p]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(method) + ":" + p
			}
			out = append(out, OperationRef{ID: id, Method: method, Path: p, Op: op})
		}
	}
	return out
}

// Operation finds an operation by id.
func Operation(doc *openapi3.T, id string) (OperationRef, error) {
	for _, ref := range Operations(doc) {
		if ref.ID == id {
			return ref, nil
		}
	}
	return OperationRef{}, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
}

// RequestSchema returns the body schema of op, preferring JSON over form
// encodings.
func RequestSchema(op *openapi3.Operation) (*openapi3.SchemaRef, error) {
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil, ErrNoRequestBody
	}
	content := op.RequestBody.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt != nil && mt.Schema != nil {
			return mt.Schema, nil
		}
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if mt := content[k]; mt != nil && mt.Schema != nil {
			return mt.Schema, nil
		}
	}
	return nil, ErrNoRequestBody
}

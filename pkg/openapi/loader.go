package openapi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
)

// Options configures document loading.
type Options struct {
	// SkipValidation loads the document without running the OpenAPI
	// validator. References are still resolved.
	SkipValidation bool
}

// Option mutates Options.
type Option func(*Options)

// WithoutValidation disables document validation.
func WithoutValidation() Option {
	return func(o *Options) {
		o.SkipValidation = true
	}
}

func newOptions(opts []Option) Options {
	var cfg Options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Load parses a JSON or YAML OpenAPI document and resolves its local
// references.
func Load(ctx context.Context, data []byte, opts ...Option) (*openapi3.T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}
	cfg := newOptions(opts)

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errors.New("openapi: document does not contain any paths")
	}
	if !cfg.SkipValidation {
		if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			return nil, fmt.Errorf("openapi: validate: %w", err)
		}
	}
	return doc, nil
}

// LoadFile reads and parses a document from disk.
func LoadFile(ctx context.Context, path string, opts ...Option) (*openapi3.T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openapi: read %s: %w", path, err)
	}
	return Load(ctx, data, opts...)
}

// LoadFS reads and parses a document from fsys.
func LoadFS(ctx context.Context, fsys fs.FS, name string, opts ...Option) (*openapi3.T, error) {
	if fsys == nil {
		return nil, errors.New("openapi: filesystem is nil")
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("openapi: read %s: %w", name, err)
	}
	return Load(ctx, data, opts...)
}

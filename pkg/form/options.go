package form

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-formlogic/pkg/httpcond"
	"github.com/goliatone/go-formlogic/pkg/store"
	"github.com/goliatone/go-formlogic/pkg/submission"
)

// Option customises a form instance.
type Option func(*options)

type options struct {
	store     store.Store
	values    map[string]any
	client    httpcond.Doer
	logger    *slog.Logger
	exclusion submission.Exclusion
	sanitize  bool
	debounce  time.Duration
	timeout   time.Duration
}

// WithStore observes an external value store instead of a private one.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithValues seeds the private store. Values win over field defaults.
func WithValues(values map[string]any) Option {
	return func(o *options) {
		o.values = values
	}
}

// WithHTTPClient sets the client used by HTTP conditions.
func WithHTTPClient(client httpcond.Doer) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGlobalExclusion sets the lowest-precedence exclusion tier.
func WithGlobalExclusion(ex submission.Exclusion) Option {
	return func(o *options) {
		o.exclusion = ex
	}
}

// WithSanitize strips markup from submitted strings.
func WithSanitize(enabled bool) Option {
	return func(o *options) {
		o.sanitize = enabled
	}
}

// WithDebounce overrides the default HTTP debounce window. Per-condition
// debounceMs still wins.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithTimeout overrides the default HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

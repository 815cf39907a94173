package httpcond

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Defaults applied when a Config leaves the value unset.
const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

var ErrClosed = errors.New("httpcond: resolver closed")

// Doer is the subset of *http.Client used by the resolver.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CacheEntry is a successful resolution.
type CacheEntry struct {
	Key       string
	Value     any
	CreatedAt time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClient sets the HTTP client.
func WithClient(client Doer) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDebounce sets the debounce used when a config has no DebounceMs.
func WithDebounce(d time.Duration) Option {
	return func(r *Resolver) { r.debounce = d }
}

// WithTimeout sets the request timeout used when a config has no TimeoutMs.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithNotify registers the callback invoked, outside any resolver lock,
// after a slot's current key resolves.
func WithNotify(fn func(id string)) Option {
	return func(r *Resolver) { r.notify = fn }
}

// Resolver owns the cache, debounce timers and in-flight requests for one
// form instance. Slots are identified by the caller (typically field path
// plus condition id); each slot tracks only its latest key.
type Resolver struct {
	client   Doer
	logger   *slog.Logger
	debounce time.Duration
	timeout  time.Duration
	notify   func(id string)

	mu          sync.Mutex
	cache       map[string]CacheEntry
	slots       map[string]*slot
	outstanding int
	waiters     []chan struct{}
	closed      bool
}

type slot struct {
	key     string
	value   any
	gen     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	request Request
	tmpl    *Template
}

// NewResolver creates an empty resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client:   http.DefaultClient,
		logger:   slog.Default().With("component", "httpcond"),
		debounce: DefaultDebounce,
		timeout:  DefaultTimeout,
		cache:    make(map[string]CacheEntry),
		slots:    make(map[string]*slot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lookup returns the current value of slot id for req and schedules a call
// when req carries a new key. It never blocks on the network.
//
// The same key keeps returning whatever the slot holds: the resolved value,
// or the template's pending value while debouncing, in flight or after a
// failure. A new key is served from the cache when possible; otherwise the
// slot reverts to the pending value and the debounce window restarts.
func (r *Resolver) Lookup(id string, tmpl *Template, req Request) any {
	cfg := tmpl.Config()
	key := req.Key()
	if cfg.CacheScope == CacheField {
		key = id + "|" + key
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return cfg.PendingValue
	}

	s, ok := r.slots[id]
	if !ok {
		s = &slot{}
		r.slots[id] = s
	} else if s.key == key {
		return s.value
	}

	r.resetLocked(s)
	s.key = key
	s.tmpl = tmpl
	s.request = req

	if cfg.CacheScope != CacheNone {
		if entry, hit := r.cache[key]; hit {
			s.value = entry.Value
			return s.value
		}
	}

	s.value = cfg.PendingValue
	gen := s.gen
	delay := r.debounce
	if cfg.DebounceMs > 0 {
		delay = time.Duration(cfg.DebounceMs) * time.Millisecond
	}
	r.outstanding++
	s.timer = time.AfterFunc(delay, func() { r.fire(id, s, gen) })
	return s.value
}

// resetLocked supersedes whatever the slot was doing.
func (r *Resolver) resetLocked(s *slot) {
	s.gen++
	if s.timer != nil {
		if s.timer.Stop() {
			r.doneLocked()
		}
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (r *Resolver) fire(id string, s *slot, gen uint64) {
	r.mu.Lock()
	if r.slots[id] != s || s.gen != gen || r.closed {
		r.doneLocked()
		r.mu.Unlock()
		return
	}
	s.timer = nil
	tmpl, req, key := s.tmpl, s.request, s.key
	timeout := r.timeout
	if ms := tmpl.Config().TimeoutMs; ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	s.cancel = cancel
	r.mu.Unlock()

	value, err := r.do(ctx, tmpl, req)
	cancel()

	r.mu.Lock()
	if err == nil && tmpl.Config().CacheScope != CacheNone {
		r.cache[key] = CacheEntry{Key: key, Value: value, CreatedAt: time.Now()}
	}
	current := r.slots[id] == s && s.gen == gen && !r.closed
	if current {
		s.cancel = nil
		if err == nil {
			s.value = value
		}
	}
	notify := r.notify
	r.mu.Unlock()

	switch {
	case err != nil && current:
		r.logger.Warn("http condition failed", "slot", id, "key", key, "error", err)
	case err != nil:
		r.logger.Debug("superseded http condition aborted", "slot", id, "key", key, "error", err)
	case !current:
		r.logger.Debug("discarding stale http response", "slot", id, "key", key)
	}

	// a failure leaves the pending value in place, so there is nothing new
	// to report
	if current && err == nil && notify != nil {
		notify(id)
	}

	r.mu.Lock()
	r.doneLocked()
	r.mu.Unlock()
}

func (r *Resolver) do(ctx context.Context, tmpl *Template, req Request) (any, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("httpcond: encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.FullURL(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("httpcond: unexpected status " + resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("httpcond: decode response: %w", err)
	}
	return tmpl.Extract(decoded), nil
}

func (r *Resolver) doneLocked() {
	if r.outstanding > 0 {
		r.outstanding--
	}
	if r.outstanding == 0 {
		for _, ch := range r.waiters {
			close(ch)
		}
		r.waiters = nil
	}
}

// Idle reports whether no timers or requests are outstanding.
func (r *Resolver) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outstanding == 0
}

// Wait blocks until the resolver is idle or ctx is done.
func (r *Resolver) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.outstanding == 0 {
		r.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cached returns the cache entry for a request key.
func (r *Resolver) Cached(key string) (CacheEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[key]
	return entry, ok
}

// Forget drops a slot, cancelling its timer and request. Used when a field
// instance leaves the form.
func (r *Resolver) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[id]; ok {
		r.resetLocked(s)
		delete(r.slots, id)
	}
}

// Close stops all timers, aborts in-flight requests and clears the cache.
// Later lookups return pending values.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	for id, s := range r.slots {
		r.resetLocked(s)
		delete(r.slots, id)
	}
	r.cache = make(map[string]CacheEntry)
	return nil
}

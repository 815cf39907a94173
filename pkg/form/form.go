// Package form runs a composed form definition against a live value store.
//
// A Form observes its store and keeps per-field runtime state consistent
// with the current values: derivations are settled, logic flags are
// recomputed, validators run, and FormState rules follow the aggregate
// status. All evaluation for one form is serialized; HTTP conditions resolve
// in the background and feed their results back through the same queue.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/derive"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/httpcond"
	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/schema"
	"github.com/goliatone/go-formlogic/pkg/store"
	"github.com/goliatone/go-formlogic/pkg/submission"
)

var (
	ErrClosed       = errors.New("form: closed")
	ErrUnknownField = errors.New("form: unknown field")
	ErrNotArray     = errors.New("form: field is not an array")
	ErrPageRange    = errors.New("form: page out of range")
)

// Form is a live form instance. It is safe for concurrent use.
type Form struct {
	id       uuid.UUID
	def      *schema.Form
	store    store.Store
	resolver *httpcond.Resolver
	logger   *slog.Logger
	opts     options

	unsubscribe func()
	stopCtx     func() bool

	// mu guards the runtime state below.
	mu         sync.Mutex
	roots      []*instance
	order      []*instance
	byPath     map[string]*instance
	engine     *derive.Engine
	engineErr  error
	values     map[string]any
	status     condition.FormStatus
	submitting bool
	page       int
	selfWrites map[string]any
	closed     bool

	// qmu guards the event queue. busy is set while one goroutine drains it.
	qmu   sync.Mutex
	qcond *sync.Cond
	queue []event
	busy  bool
}

type event struct {
	paths    []string
	resolved []string
	status   bool
	all      bool
}

// New builds a form instance from a composed definition and runs the first
// pass. The instance is closed when ctx is done.
func New(ctx context.Context, def *schema.Form, opts ...Option) (*Form, error) {
	if def == nil {
		return nil, errors.New("form: definition is nil")
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("form: instance id: %w", err)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default().With("component", "form")
	}
	logger = logger.With("form", id.String())

	f := &Form{
		id:     id,
		def:    def,
		logger: logger,
		opts:   o,
		byPath: make(map[string]*instance),
	}
	f.qcond = sync.NewCond(&f.qmu)

	resolverOpts := []httpcond.Option{
		httpcond.WithLogger(logger),
		httpcond.WithNotify(f.onResolved),
	}
	if o.client != nil {
		resolverOpts = append(resolverOpts, httpcond.WithClient(o.client))
	}
	if o.debounce > 0 {
		resolverOpts = append(resolverOpts, httpcond.WithDebounce(o.debounce))
	}
	if o.timeout > 0 {
		resolverOpts = append(resolverOpts, httpcond.WithTimeout(o.timeout))
	}
	f.resolver = httpcond.NewResolver(resolverOpts...)

	f.store = o.store
	if f.store == nil {
		initial := def.Defaults()
		for _, path := range fieldpath.Flatten(o.values) {
			_ = fieldpath.Set(initial, path, fieldpath.Clone(fieldpath.Lookup(o.values, path)))
		}
		f.store = store.NewMapStore(initial)
	} else {
		defaults := def.Defaults()
		for _, path := range fieldpath.Flatten(defaults) {
			if f.store.Get(path) == nil {
				if err := f.store.Set(path, fieldpath.Lookup(defaults, path)); err != nil {
					return nil, fmt.Errorf("form: apply default %s: %w", path, err)
				}
			}
		}
	}

	f.values = f.store.Snapshot()
	for _, n := range def.Roots {
		f.roots = append(f.roots, f.instantiate(n, nil, "", ""))
	}
	f.reindex()
	if f.engineErr != nil {
		_ = f.resolver.Close()
		return nil, f.engineErr
	}

	f.unsubscribe = f.store.Subscribe(f.onStoreChange)
	if ctx != nil {
		f.stopCtx = context.AfterFunc(ctx, func() { _ = f.Close() })
	}

	f.enqueue(event{all: true})
	f.drain(true)
	return f, nil
}

// ID returns the instance identifier.
func (f *Form) ID() string { return f.id.String() }

func (f *Form) onStoreChange(changed []string) {
	f.enqueue(event{paths: changed})
	f.drain(false)
}

func (f *Form) onResolved(slot string) {
	owner := slot
	if idx := strings.LastIndexByte(slot, '#'); idx >= 0 {
		owner = slot[:idx]
	}
	f.enqueue(event{resolved: []string{owner}})
	f.drain(true)
}

func (f *Form) enqueue(ev event) {
	f.qmu.Lock()
	f.queue = append(f.queue, ev)
	f.qmu.Unlock()
}

// drain processes queued events. Only one goroutine drains at a time; with
// wait unset a concurrent caller returns immediately and leaves its events
// to the active drainer.
func (f *Form) drain(wait bool) {
	f.qmu.Lock()
	for f.busy {
		if !wait {
			f.qmu.Unlock()
			return
		}
		f.qcond.Wait()
	}
	f.busy = true
	for len(f.queue) > 0 {
		batch := f.queue
		f.queue = nil
		f.qmu.Unlock()

		f.mu.Lock()
		f.process(batch)
		f.mu.Unlock()

		f.qmu.Lock()
	}
	f.busy = false
	f.qcond.Broadcast()
	f.qmu.Unlock()
}

// SetValue writes one value and returns once its pass has run.
func (f *Form) SetValue(path string, value any) error {
	p, err := fieldpath.Parse(path)
	if err != nil {
		return err
	}
	if f.isClosed() {
		return ErrClosed
	}
	if err := f.store.Set(p.String(), value); err != nil {
		return err
	}
	f.drain(true)
	return nil
}

// SetValues writes several values as one change when the store supports it.
func (f *Form) SetValues(values map[string]any) error {
	if f.isClosed() {
		return ErrClosed
	}
	if many, ok := f.store.(interface{ SetMany(map[string]any) error }); ok {
		if err := many.SetMany(values); err != nil {
			return err
		}
	} else {
		for path, value := range values {
			if err := f.store.Set(path, value); err != nil {
				return err
			}
		}
	}
	f.drain(true)
	return nil
}

// Value reads a value from the store.
func (f *Form) Value(path string) any { return f.store.Get(path) }

// Values returns a copy of the whole value tree.
func (f *Form) Values() map[string]any { return f.store.Snapshot() }

// State returns the runtime state of a field instance.
func (f *Form) State(path string) (logic.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.byPath[fieldpath.Normalize(path)]
	if !ok {
		return logic.State{}, false
	}
	return inst.state, true
}

// AddItem appends a new item built from the array's field defaults and
// returns its index.
func (f *Form) AddItem(path string) (int, error) {
	node, err := f.arrayNode(path)
	if err != nil {
		return 0, err
	}
	canonical := fieldpath.Normalize(path)
	items := asSlice(f.store.Get(canonical))
	items = append(items, node.ItemDefaults())
	if err := f.store.Set(canonical, items); err != nil {
		return 0, err
	}
	f.drain(true)
	return len(items) - 1, nil
}

// RemoveItem deletes item index of the array at path.
func (f *Form) RemoveItem(path string, index int) error {
	if _, err := f.arrayNode(path); err != nil {
		return err
	}
	canonical := fieldpath.Normalize(path)
	if index < 0 || index >= len(asSlice(f.store.Get(canonical))) {
		return fmt.Errorf("%w: %s has no item %d", ErrUnknownField, canonical, index)
	}
	if err := f.store.Delete(fieldpath.Join(canonical, strconv.Itoa(index))); err != nil {
		return err
	}
	f.drain(true)
	return nil
}

func (f *Form) arrayNode(path string) (*schema.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	inst, ok := f.byPath[fieldpath.Normalize(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	if !inst.node.IsArray() {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, path)
	}
	return inst.node, nil
}

// SetSubmitting toggles the submission-in-progress status.
func (f *Form) SetSubmitting(submitting bool) {
	f.mu.Lock()
	f.submitting = submitting
	f.mu.Unlock()
	f.enqueue(event{status: true})
	f.drain(true)
}

// SetPage selects the current page for pageInvalid.
func (f *Form) SetPage(page int) error {
	f.mu.Lock()
	if page < 0 || (f.def.PageCount > 0 && page >= f.def.PageCount) || (f.def.PageCount == 0 && page != 0) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrPageRange, page)
	}
	f.page = page
	f.mu.Unlock()
	f.enqueue(event{status: true})
	f.drain(true)
	return nil
}

// Page returns the current page index.
func (f *Form) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// PageCount returns the number of pages, zero for single-page forms.
func (f *Form) PageCount() int { return f.def.PageCount }

// Valid reports whether no counted validation issue remains.
func (f *Form) Valid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.status.Invalid
}

// Submission returns the value object to submit: a copy of the values with
// hidden, disabled and readonly fields removed per exclusion policy.
func (f *Form) Submission() map[string]any {
	values := f.store.Snapshot()

	f.mu.Lock()
	fields := make([]submission.Field, 0, len(f.order))
	for _, inst := range f.order {
		if !inst.node.Valued() {
			continue
		}
		fields = append(fields, submission.Field{Path: inst.path, State: inst.state, Exclusion: inst.node.Exclusion})
	}
	f.mu.Unlock()

	return submission.Build(values, fields, f.submissionOptions())
}

func (f *Form) submissionOptions() submission.Options {
	return submission.Options{Form: f.def.Exclusion, Global: f.opts.exclusion, Sanitize: f.opts.sanitize}
}

// Wait blocks until no HTTP condition is pending and every resulting pass
// has run.
func (f *Form) Wait(ctx context.Context) error {
	for {
		if err := f.resolver.Wait(ctx); err != nil {
			return err
		}
		f.drain(true)
		if f.resolver.Idle() {
			return nil
		}
	}
}

// Close stops observing the store and disposes of timers, in-flight
// requests and the request cache.
func (f *Form) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	if f.stopCtx != nil {
		f.stopCtx()
	}
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	if err := f.resolver.Close(); err != nil && !errors.Is(err, httpcond.ErrClosed) {
		return err
	}
	f.logger.Debug("form closed")
	return nil
}

func (f *Form) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// counts reports whether issues of inst make the form invalid. Values
// excluded from submission are still validated but do not block it.
func (f *Form) counts(inst *instance) bool {
	return !submission.Excluded(submission.Field{State: inst.state, Exclusion: inst.node.Exclusion}, f.submissionOptions())
}

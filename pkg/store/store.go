// Package store defines the key-path addressable value store the logic engine
// observes, plus an in-memory implementation.
package store

import (
	"sort"
	"sync"

	"github.com/goliatone/go-formlogic/pkg/fieldpath"
)

// Listener receives the canonical paths touched by a write.
type Listener func(changed []string)

// Store is the reactive form-value tree consumed by the engine.
type Store interface {
	Get(path string) any
	Set(path string, value any) error
	Delete(path string) error
	Snapshot() map[string]any
	Subscribe(fn Listener) (cancel func())
}

// MapStore keeps values in a nested map guarded by a mutex. Listeners run
// synchronously on the writer's goroutine after the lock is released.
type MapStore struct {
	mu        sync.RWMutex
	values    map[string]any
	listeners map[int]Listener
	nextID    int
}

// Ensure MapStore satisfies Store.
var _ Store = (*MapStore)(nil)

// NewMapStore seeds the store with a deep copy of initial.
func NewMapStore(initial map[string]any) *MapStore {
	return &MapStore{
		values:    fieldpath.CloneMap(initial),
		listeners: make(map[int]Listener),
	}
}

// Get returns the value at path, or nil when any segment is missing. The
// returned value is a copy.
func (s *MapStore) Get(path string) any {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fieldpath.Clone(fieldpath.Lookup(s.values, path))
}

// Set writes value at path. Writes that do not change the stored value do not
// notify listeners.
func (s *MapStore) Set(path string, value any) error {
	canonical := fieldpath.Normalize(path)
	listeners, changed, err := s.set(canonical, value)
	if err != nil || !changed {
		return err
	}
	notify(listeners, []string{canonical})
	return nil
}

func (s *MapStore) set(canonical string, value any) ([]Listener, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, exists := fieldpath.Get(s.values, canonical); exists && fieldpath.Equal(current, value) {
		return nil, false, nil
	}
	if err := fieldpath.Set(s.values, canonical, fieldpath.Clone(value)); err != nil {
		return nil, false, err
	}
	return s.snapshotListeners(), true, nil
}

// SetMany applies every write and notifies once with all changed paths.
func (s *MapStore) SetMany(values map[string]any) error {
	paths := make([]string, 0, len(values))
	for path := range values {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	listeners, changed, err := s.setMany(paths, values)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		notify(listeners, changed)
	}
	return nil
}

func (s *MapStore) setMany(paths []string, values map[string]any) ([]Listener, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for _, path := range paths {
		canonical := fieldpath.Normalize(path)
		value := values[path]
		if current, ok := fieldpath.Get(s.values, canonical); ok && fieldpath.Equal(current, value) {
			continue
		}
		if err := fieldpath.Set(s.values, canonical, fieldpath.Clone(value)); err != nil {
			return nil, nil, err
		}
		changed = append(changed, canonical)
	}
	return s.snapshotListeners(), changed, nil
}

// Delete removes the value at path and notifies listeners when something was
// removed.
func (s *MapStore) Delete(path string) error {
	canonical := fieldpath.Normalize(path)
	listeners, removed, err := s.remove(canonical)
	if err != nil || !removed {
		return err
	}

	changed := canonical
	if parent := fieldpath.Parent(canonical); parent != "" {
		// array deletes shift siblings, so report the container
		changed = parent
	}
	notify(listeners, []string{changed})
	return nil
}

func (s *MapStore) remove(canonical string) ([]Listener, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := fieldpath.Get(s.values, canonical); !ok {
		return nil, false, nil
	}
	if err := fieldpath.Delete(s.values, canonical); err != nil {
		return nil, false, err
	}
	return s.snapshotListeners(), true, nil
}

// Snapshot returns a deep copy of the whole tree.
func (s *MapStore) Snapshot() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fieldpath.CloneMap(s.values)
}

// Subscribe registers fn and returns a function that removes it.
func (s *MapStore) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *MapStore) snapshotListeners() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

func notify(listeners []Listener, changed []string) {
	for _, fn := range listeners {
		fn(append([]string(nil), changed...))
	}
}

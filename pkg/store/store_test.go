package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formlogic/pkg/fieldpath"
)

func TestMapStoreNotifiesOnChange(t *testing.T) {
	t.Parallel()

	s := NewMapStore(map[string]any{"name": "a"})
	var got [][]string
	cancel := s.Subscribe(func(changed []string) {
		got = append(got, changed)
	})

	if err := s.Set("name", "a"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := s.Set("items[0].title", "x"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	cancel()
	if err := s.Set("name", "b"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	want := [][]string{{"items.0.title"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}
	if s.Get("name") != "b" {
		t.Fatalf("expected write after cancel to land, got %v", s.Get("name"))
	}
}

func TestMapStoreSetManyNotifiesOnce(t *testing.T) {
	t.Parallel()

	s := NewMapStore(nil)
	calls := 0
	var last []string
	s.Subscribe(func(changed []string) {
		calls++
		last = changed
	})

	if err := s.SetMany(map[string]any{"b": 2, "a": 1}); err != nil {
		t.Fatalf("SetMany returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
	if diff := cmp.Diff([]string{"a", "b"}, last); diff != "" {
		t.Fatalf("unexpected changed paths (-want +got):\n%s", diff)
	}
}

func TestMapStoreSnapshotIsolation(t *testing.T) {
	t.Parallel()

	initial := map[string]any{"group": map[string]any{"x": 1}}
	s := NewMapStore(initial)
	initial["group"].(map[string]any)["x"] = 99

	snap := s.Snapshot()
	snap["group"].(map[string]any)["x"] = 42

	if got := s.Get("group.x"); got != 1 {
		t.Fatalf("store mutated through external references, got %v", got)
	}
}

func TestMapStoreDeleteReportsContainer(t *testing.T) {
	t.Parallel()

	s := NewMapStore(map[string]any{"items": []any{"a", "b"}})
	var got []string
	s.Subscribe(func(changed []string) { got = changed })

	if err := s.Delete("items.0"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"items"}, got); diff != "" {
		t.Fatalf("unexpected changed paths (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"b"}, s.Get("items")); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestMapStoreStaysUsableAfterRejectedWrite(t *testing.T) {
	t.Parallel()

	s := NewMapStore(nil)
	if err := s.Set("tags.9223372036854775806", "x"); !errors.Is(err, fieldpath.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := s.SetMany(map[string]any{"a": 1, "b.99999": 2}); !errors.Is(err, fieldpath.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath from SetMany, got %v", err)
	}
	if err := s.Set("tags.0", "x"); err != nil {
		t.Fatalf("Set after rejected write returned error: %v", err)
	}
	if diff := cmp.Diff([]any{"x"}, s.Get("tags")); diff != "" {
		t.Fatalf("unexpected tags (-want +got):\n%s", diff)
	}
}

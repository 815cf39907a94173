package fieldpath

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseCanonicalForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "name", want: "name"},
		{raw: "address.city", want: "address.city"},
		{raw: "items[0].name", want: "items.0.name"},
		{raw: "items.0.name", want: "items.0.name"},
		{raw: `meta["x"].y`, want: "meta.x.y"},
		{raw: "meta['k'][2]", want: "meta.k.2"},
		{raw: "  spaced  ", want: "spaced"},
	}
	for _, tt := range tests {
		got, err := Parse(tt.raw)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tt.raw, err)
		}
		if got.String() != tt.want {
			t.Fatalf("Parse(%q) = %q, want %q", tt.raw, got.String(), tt.want)
		}
	}
}

func TestParseRejectsMalformedPaths(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"a..b", ".a", "a.", "a[0", "a[]", `a["x]`} {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalidPath", raw, err)
		}
	}
}

func TestGetMissingSegmentsResolveToNil(t *testing.T) {
	t.Parallel()

	root := map[string]any{
		"user": map[string]any{
			"tags": []any{"a", "b"},
		},
	}

	if v, ok := Get(root, "user.tags.1"); !ok || v != "b" {
		t.Fatalf("expected b, got %v (ok=%v)", v, ok)
	}
	for _, path := range []string{"user.missing.deep", "user.tags.9", "user.tags.x", "nope"} {
		if v, ok := Get(root, path); ok || v != nil {
			t.Fatalf("Get(%q) = %v, %v; want nil, false", path, v, ok)
		}
	}
}

func TestSetCreatesIntermediateContainers(t *testing.T) {
	t.Parallel()

	root := map[string]any{}
	if err := Set(root, "items[1].name", "second"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := Set(root, "profile.address.city", "Oslo"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	want := map[string]any{
		"items": []any{nil, map[string]any{"name": "second"}},
		"profile": map[string]any{
			"address": map[string]any{"city": "Oslo"},
		},
	}
	if diff := cmp.Diff(want, root); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}
}

func TestSetRejectsFarIndexes(t *testing.T) {
	t.Parallel()

	root := map[string]any{"tags": []any{"a"}}
	for _, path := range []string{"tags.9223372036854775806", "fresh.5000", "tags.1026"} {
		if err := Set(root, path, "x"); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Set(%s) expected ErrInvalidPath, got %v", path, err)
		}
	}
	if err := Set(root, "tags.1025", "x"); err != nil {
		t.Fatalf("Set within the gap returned error: %v", err)
	}
	if n := len(root["tags"].([]any)); n != 1026 {
		t.Fatalf("expected 1026 items, got %d", n)
	}
}

func TestDeleteShiftsArrayItems(t *testing.T) {
	t.Parallel()

	root := map[string]any{
		"items": []any{"a", "b", "c"},
		"meta":  map[string]any{"x": 1, "y": 2},
	}
	if err := Delete(root, "items.1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := Delete(root, "meta.x"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := Delete(root, "missing.path"); err != nil {
		t.Fatalf("Delete of missing path returned error: %v", err)
	}

	want := map[string]any{
		"items": []any{"a", "c"},
		"meta":  map[string]any{"y": 2},
	}
	if diff := cmp.Diff(want, root); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"address", "address.city", true},
		{"address.city", "address", true},
		{"address.city", "address.city", true},
		{"address", "addressLine", false},
		{"items.0", "items.1", false},
	}
	for _, tt := range tests {
		if got := Overlaps(tt.a, tt.b); got != tt.want {
			t.Fatalf("Overlaps(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	src := map[string]any{"a": map[string]any{"b": []any{1}}}
	dst := CloneMap(src)
	_ = Set(dst, "a.b.0", 2)

	if Lookup(src, "a.b.0") != 1 {
		t.Fatalf("clone shares memory with source")
	}
}

func TestGetPropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	root := map[string]any{
		"a": map[string]any{"b": []any{map[string]any{"c": "deep"}, nil}},
		"n": nil,
	}

	atoms := []string{"a", "b", "c", "0", "1", "n", "", "x.y", "[", "]"}

	properties.Property("arbitrary paths never panic", prop.ForAll(
		func(i, j, k int, brackets bool) bool {
			parts := []string{atoms[i], atoms[j], atoms[k]}
			raw := strings.Join(parts, ".")
			if brackets {
				raw = parts[0] + "[" + parts[1] + "]." + parts[2]
			}
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Get(%q) panicked: %v", raw, r)
				}
			}()
			_, _ = Get(root, raw)
			_ = Normalize(raw)
			return true
		},
		gen.IntRange(0, len(atoms)-1),
		gen.IntRange(0, len(atoms)-1),
		gen.IntRange(0, len(atoms)-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

package httpcond

import (
	"errors"
	"testing"

	"github.com/goliatone/go-formlogic/pkg/expr"
)

func TestRequestKeyIsStable(t *testing.T) {
	t.Parallel()

	tmpl, err := Compile(Config{
		URL:    "https://api.test/orgs/{org}/members",
		Params: map[string]string{"org": "org", "role": "role", "page": "1"},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	vars := expr.Vars{expr.RootForm: map[string]any{"org": "acme inc", "role": "admin"}}
	first, err := tmpl.Build(vars)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	second, _ := tmpl.Build(vars)

	want := "GET https://api.test/orgs/acme%20inc/members?page=1&role=admin"
	if first.Key() != want {
		t.Fatalf("unexpected key %q, want %q", first.Key(), want)
	}
	if first.Key() != second.Key() {
		t.Fatalf("key is not stable: %q vs %q", first.Key(), second.Key())
	}

	other, _ := tmpl.Build(expr.Vars{expr.RootForm: map[string]any{"org": "acme inc", "role": "viewer"}})
	if other.Key() == first.Key() {
		t.Fatalf("different values must produce different keys")
	}
}

func TestBodyKeyIncludesCanonicalJSON(t *testing.T) {
	t.Parallel()

	tmpl, err := Compile(Config{
		URL:    "https://api.test/check",
		Method: "PATCH",
		Body:   map[string]string{"b": "b", "a": "a"},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	req, err := tmpl.Build(expr.Vars{expr.RootForm: map[string]any{"a": 1, "b": "x"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got, want := req.Key(), `PATCH https://api.test/check#{"a":1,"b":"x"}`; got != want {
		t.Fatalf("unexpected key %q, want %q", got, want)
	}
}

func TestCompileRejectsBadConfig(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]Config{
		"missing url":         {},
		"bad method":          {URL: "http://x", Method: "DELETE"},
		"bad scope":           {URL: "http://x", CacheScope: "global"},
		"unbound placeholder": {URL: "http://x/{id}"},
		"bad param":           {URL: "http://x", Params: map[string]string{"q": "a =="}},
		"negative debounce":   {URL: "http://x", DebounceMs: -1},
	} {
		if _, err := Compile(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestExtractResponsePath(t *testing.T) {
	t.Parallel()

	body := map[string]any{"data": map[string]any{"items": []any{map[string]any{"ok": "yes"}}}}
	tmpl, _ := Compile(Config{URL: "http://x", ResponsePath: "response.data.items[0].ok"})
	if got := tmpl.Extract(body); got != "yes" {
		t.Fatalf("expected yes, got %v", got)
	}
	whole, _ := Compile(Config{URL: "http://x"})
	if got := whole.Extract("raw"); got != "raw" {
		t.Fatalf("expected whole body, got %v", got)
	}
}

package httpcond

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formlogic/pkg/expr"
)

type recordingServer struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	queries []string
}

func newRecordingServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.calls.Add(1)
		rs.mu.Lock()
		rs.queries = append(rs.queries, r.URL.RawQuery)
		rs.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) lastQuery() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.queries) == 0 {
		return ""
	}
	return rs.queries[len(rs.queries)-1]
}

func mustTemplate(t *testing.T, cfg Config) *Template {
	t.Helper()
	tmpl, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	return tmpl
}

func lookup(t *testing.T, r *Resolver, id string, tmpl *Template, values map[string]any) any {
	t.Helper()
	req, err := tmpl.Build(expr.Vars{expr.RootForm: values})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return r.Lookup(id, tmpl, req)
}

func waitIdle(t *testing.T, r *Resolver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("resolver did not settle: %v", err)
	}
}

func permissionsHandler(w http.ResponseWriter, r *http.Request) {
	hide := r.URL.Query().Get("role") != "admin"
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"permissions":{"hideAdminPanel":%t}}`, hide)
}

func TestAdminViewerScenarioUsesCache(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, permissionsHandler)
	tmpl := mustTemplate(t, Config{
		URL:          srv.URL + "/permissions",
		Params:       map[string]string{"role": "role"},
		ResponsePath: "response.permissions.hideAdminPanel",
		DebounceMs:   5,
		PendingValue: true,
	})
	r := NewResolver(WithClient(srv.Client()))
	t.Cleanup(func() { _ = r.Close() })

	if got := lookup(t, r, "adminPanel", tmpl, map[string]any{"role": "admin"}); got != true {
		t.Fatalf("expected pending value before resolution, got %v", got)
	}
	waitIdle(t, r)
	if got := lookup(t, r, "adminPanel", tmpl, map[string]any{"role": "admin"}); got != false {
		t.Fatalf("admin should see the panel, got hide=%v", got)
	}

	lookup(t, r, "adminPanel", tmpl, map[string]any{"role": "viewer"})
	waitIdle(t, r)
	if got := lookup(t, r, "adminPanel", tmpl, map[string]any{"role": "viewer"}); got != true {
		t.Fatalf("viewer should not see the panel, got hide=%v", got)
	}

	if got := lookup(t, r, "adminPanel", tmpl, map[string]any{"role": "admin"}); got != false {
		t.Fatalf("admin should be served from cache synchronously, got %v", got)
	}
	waitIdle(t, r)
	if calls := srv.calls.Load(); calls != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"q":%q}`, r.URL.Query().Get("q"))
	})
	tmpl := mustTemplate(t, Config{
		URL:          srv.URL + "/search",
		Params:       map[string]string{"q": "formValue.q"},
		ResponsePath: "q",
		DebounceMs:   50,
	})
	r := NewResolver(WithClient(srv.Client()))
	t.Cleanup(func() { _ = r.Close() })

	for _, q := range []string{"a", "ab", "abc", "final"} {
		if got := lookup(t, r, "search", tmpl, map[string]any{"q": q}); got != nil {
			t.Fatalf("expected pending nil while debouncing, got %v", got)
		}
	}
	waitIdle(t, r)

	if calls := srv.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly one request, got %d", calls)
	}
	if q := srv.lastQuery(); q != "q=final" {
		t.Fatalf("expected request with last value, got %q", q)
	}
	if got := lookup(t, r, "search", tmpl, map[string]any{"q": "final"}); got != "final" {
		t.Fatalf("expected resolved value final, got %v", got)
	}
}

func TestErrorFallsBackToPendingWithoutRetry(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	tmpl := mustTemplate(t, Config{
		URL:          srv.URL + "/check",
		Params:       map[string]string{"id": "id"},
		DebounceMs:   1,
		PendingValue: "pending",
	})
	r := NewResolver(WithClient(srv.Client()))
	t.Cleanup(func() { _ = r.Close() })

	values := map[string]any{"id": 7}
	lookup(t, r, "f", tmpl, values)
	waitIdle(t, r)

	if got := lookup(t, r, "f", tmpl, values); got != "pending" {
		t.Fatalf("expected pending value after failure, got %v", got)
	}
	waitIdle(t, r)
	if calls := srv.calls.Load(); calls != 1 {
		t.Fatalf("expected no retry for the same key, got %d calls", calls)
	}
	req, _ := tmpl.Build(expr.Vars{expr.RootForm: values})
	if _, ok := r.Cached(req.Key()); ok {
		t.Fatalf("failed responses must not be cached")
	}

	lookup(t, r, "f", tmpl, map[string]any{"id": 8})
	waitIdle(t, r)
	if calls := srv.calls.Load(); calls != 2 {
		t.Fatalf("expected a new attempt for a new key, got %d calls", calls)
	}
}

func TestInvalidJSONFallsBackToPending(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	tmpl := mustTemplate(t, Config{URL: srv.URL, DebounceMs: 1, PendingValue: false})
	r := NewResolver(WithClient(srv.Client()))
	t.Cleanup(func() { _ = r.Close() })

	lookup(t, r, "f", tmpl, nil)
	waitIdle(t, r)
	if got := lookup(t, r, "f", tmpl, nil); got != false {
		t.Fatalf("expected pending value, got %v", got)
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	t.Parallel()

	slowStarted := make(chan struct{})
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "slow" {
			close(slowStarted)
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
		fmt.Fprintf(w, `{"q":%q}`, q)
	})
	tmpl := mustTemplate(t, Config{
		URL:        srv.URL,
		Params:     map[string]string{"q": "q"},
		DebounceMs: 1,
		CacheScope: CacheNone,
	})

	var (
		mu       sync.Mutex
		notified []string
	)
	r := NewResolver(WithClient(srv.Client()), WithNotify(func(id string) {
		mu.Lock()
		notified = append(notified, id)
		mu.Unlock()
	}))
	t.Cleanup(func() { _ = r.Close() })

	lookup(t, r, "f", tmpl, map[string]any{"q": "slow"})
	select {
	case <-slowStarted:
	case <-time.After(5 * time.Second):
		t.Fatalf("slow request never started")
	}

	lookup(t, r, "f", tmpl, map[string]any{"q": "fast"})
	waitIdle(t, r)

	if got := lookup(t, r, "f", tmpl, map[string]any{"q": "fast"}); got != "fast" {
		t.Fatalf("expected latest key to win, got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"f"}, notified); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}
}

func TestNewKeyNeverInheritsPreviousValue(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"ok":%t}`, r.URL.Query().Get("v") == "1")
	})
	tmpl := mustTemplate(t, Config{
		URL:          srv.URL,
		Params:       map[string]string{"v": "v"},
		ResponsePath: "ok",
		DebounceMs:   1,
		PendingValue: "waiting",
	})
	r := NewResolver(WithClient(srv.Client()))
	t.Cleanup(func() { _ = r.Close() })

	lookup(t, r, "f", tmpl, map[string]any{"v": 1})
	waitIdle(t, r)
	if got := lookup(t, r, "f", tmpl, map[string]any{"v": 1}); got != true {
		t.Fatalf("expected resolved true, got %v", got)
	}
	if got := lookup(t, r, "f", tmpl, map[string]any{"v": 2}); got != "waiting" {
		t.Fatalf("new key must revert to pending, got %v", got)
	}
	waitIdle(t, r)
}

func TestPostSendsJSONBody(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
	)
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		mu.Lock()
		body = string(buf[:n])
		mu.Unlock()
		_, _ = w.Write([]byte(`{"valid":1}`))
	})
	tmpl := mustTemplate(t, Config{
		URL:           srv.URL + "/users/{id}/validate",
		Method:        "post",
		Params:        map[string]string{"id": "user.id", "email": "user.email"},
		ResponsePath:  "valid",
		CoerceBoolean: true,
		DebounceMs:    1,
	})
	r := NewResolver(WithClient(srv.Client()))
	t.Cleanup(func() { _ = r.Close() })

	values := map[string]any{"user": map[string]any{"id": "a b", "email": "x@y.z"}}
	lookup(t, r, "f", tmpl, values)
	waitIdle(t, r)

	if got := lookup(t, r, "f", tmpl, values); got != true {
		t.Fatalf("expected coerced true, got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if body != `{"email":"x@y.z"}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestCloseReturnsPending(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, permissionsHandler)
	tmpl := mustTemplate(t, Config{URL: srv.URL, DebounceMs: 1000, PendingValue: "p"})
	r := NewResolver(WithClient(srv.Client()))

	lookup(t, r, "f", tmpl, nil)
	if r.Idle() {
		t.Fatalf("expected a pending debounce timer")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !r.Idle() {
		t.Fatalf("expected Close to stop timers")
	}
	if got := lookup(t, r, "f", tmpl, nil); got != "p" {
		t.Fatalf("expected pending after close, got %v", got)
	}
	if calls := srv.calls.Load(); calls != 0 {
		t.Fatalf("expected no requests, got %d", calls)
	}
}

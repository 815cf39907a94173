package form

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/store"
	"github.com/goliatone/go-formlogic/pkg/submission"
	"github.com/goliatone/go-formlogic/pkg/testsupport"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

func newForm(t *testing.T, raw string, opts ...Option) *Form {
	t.Helper()
	def := testsupport.MustCompose(t, raw)
	opts = append([]Option{WithLogger(testsupport.Logger())}, opts...)
	f, err := New(testsupport.Context(t), def, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func mustState(t *testing.T, f *Form, path string) logic.State {
	t.Helper()
	state, ok := f.State(path)
	if !ok {
		t.Fatalf("no field instance at %s", path)
	}
	return state
}

func mustSet(t *testing.T, f *Form, path string, value any) {
	t.Helper()
	if err := f.SetValue(path, value); err != nil {
		t.Fatalf("SetValue(%s) returned error: %v", path, err)
	}
}

const subscriptionForm = `
fields:
  - key: subscriptionType
    type: select
    defaultValue: free
    options:
      - {label: Free, value: free}
      - {label: Premium, value: premium}
  - key: paymentMethod
    type: input
    defaultValue: card
    logic:
      - type: hidden
        condition: {type: fieldValue, fieldPath: subscriptionType, value: free}
`

func TestSubscriptionHidesPaymentMethod(t *testing.T) {
	t.Parallel()

	f := newForm(t, subscriptionForm)
	if !mustState(t, f, "paymentMethod").Hidden {
		t.Fatalf("free subscription should hide paymentMethod")
	}
	if diff := cmp.Diff(map[string]any{"subscriptionType": "free"}, f.Submission()); diff != "" {
		t.Fatalf("unexpected submission (-want +got):\n%s", diff)
	}

	mustSet(t, f, "subscriptionType", "premium")
	if mustState(t, f, "paymentMethod").Hidden {
		t.Fatalf("premium subscription should show paymentMethod")
	}
	want := map[string]any{"subscriptionType": "premium", "paymentMethod": "card"}
	if diff := cmp.Diff(want, f.Submission()); diff != "" {
		t.Fatalf("unexpected submission (-want +got):\n%s", diff)
	}
}

func TestGlobalExclusionKeepsHiddenValues(t *testing.T) {
	t.Parallel()

	f := newForm(t, subscriptionForm, WithGlobalExclusion(submission.Exclusion{ExcludeValueIfHidden: submission.Bool(false)}))
	want := map[string]any{"subscriptionType": "free", "paymentMethod": "card"}
	if diff := cmp.Diff(want, f.Submission()); diff != "" {
		t.Fatalf("unexpected submission (-want +got):\n%s", diff)
	}
}

func TestDiscountAndPremiumHidesRegularPrice(t *testing.T) {
	t.Parallel()

	f := newForm(t, `
fields:
  - {key: hasDiscount, type: checkbox, defaultValue: false}
  - {key: isPremiumMember, type: checkbox, defaultValue: false}
  - key: regularPrice
    type: number
    logic:
      - type: hidden
        condition:
          type: and
          conditions:
            - {type: fieldValue, fieldPath: hasDiscount, value: true}
            - {type: fieldValue, fieldPath: isPremiumMember, value: true}
`)

	tests := []struct {
		discount, premium bool
		hidden            bool
	}{
		{true, false, false},
		{false, true, false},
		{true, true, true},
		{false, false, false},
	}
	for _, tt := range tests {
		if err := f.SetValues(map[string]any{"hasDiscount": tt.discount, "isPremiumMember": tt.premium}); err != nil {
			t.Fatalf("SetValues returned error: %v", err)
		}
		if got := mustState(t, f, "regularPrice").Hidden; got != tt.hidden {
			t.Fatalf("discount=%v premium=%v: hidden=%v, want %v", tt.discount, tt.premium, got, tt.hidden)
		}
	}
}

func TestDerivationsSettleAndReportErrors(t *testing.T) {
	t.Parallel()

	f := newForm(t, `
fields:
  - key: shout
    type: input
    logic:
      - type: derivation
        expression: fullName?.toUpperCase()
  - {key: firstName, type: input}
  - {key: lastName, type: input}
  - key: fullName
    type: input
    readonly: true
    logic:
      - type: derivation
        expression: 'firstName + " " + lastName'
  - key: nick
    type: input
    logic:
      - type: derivation
        expression: profile.name
`, WithValues(map[string]any{"firstName": "John", "lastName": "Doe", "nick": "jd"}))

	if got := f.Value("fullName"); got != "John Doe" {
		t.Fatalf("fullName = %v", got)
	}
	// shout is declared first but reads fullName, so it runs after it
	if got := f.Value("shout"); got != "JOHN DOE" {
		t.Fatalf("shout = %v", got)
	}

	mustSet(t, f, "firstName", "Jane")
	if got := f.Value("fullName"); got != "Jane Doe" {
		t.Fatalf("fullName = %v after change", got)
	}
	if got := f.Value("shout"); got != "JANE DOE" {
		t.Fatalf("shout = %v after change", got)
	}

	view, _ := f.Field("nick")
	if f.Value("nick") != "jd" {
		t.Fatalf("failed derivation must keep the previous value")
	}
	if len(view.Issues) != 1 || view.Issues[0].Kind != KindDerivation {
		t.Fatalf("expected a derivation issue, got %+v", view.Issues)
	}
	if !f.Valid() {
		t.Fatalf("derivation issues do not invalidate the form: %v", f.Errors())
	}

	mustSet(t, f, "profile", map[string]any{"name": "janie"})
	view, _ = f.Field("nick")
	if f.Value("nick") != "janie" || len(view.Issues) != 0 {
		t.Fatalf("nick = %v issues = %+v", f.Value("nick"), view.Issues)
	}
}

const linesForm = `
fields:
  - key: lines
    type: array
    fields:
      - {key: qty, type: number, defaultValue: 1}
      - {key: price, type: number, defaultValue: 0}
      - key: total
        type: number
        logic:
          - type: derivation
            expression: item.qty * item.price
      - key: note
        type: input
        logic:
          - type: hidden
            condition: {type: fieldValue, fieldPath: $item.qty, operator: less, value: 2}
  - key: sum
    type: number
    logic:
      - type: derivation
        expression: lines.sum('total')
`

func TestArrayItemsAreInstantiatedPerIndex(t *testing.T) {
	t.Parallel()

	f := newForm(t, linesForm, WithValues(map[string]any{
		"lines": []any{
			map[string]any{"qty": 2, "price": 3},
			map[string]any{"qty": 1, "price": 5},
		},
	}))

	if got := f.Value("lines.0.total"); got != 6.0 {
		t.Fatalf("lines.0.total = %v", got)
	}
	if got := f.Value("sum"); got != 11.0 {
		t.Fatalf("sum = %v", got)
	}
	if mustState(t, f, "lines.0.note").Hidden || !mustState(t, f, "lines.1.note").Hidden {
		t.Fatalf("note visibility should follow each item's qty")
	}

	idx, err := f.AddItem("lines")
	if err != nil || idx != 2 {
		t.Fatalf("AddItem = %d, %v", idx, err)
	}
	mustSet(t, f, "lines.2.price", 4)
	if got := f.Value("lines.2.total"); got != 4.0 {
		t.Fatalf("lines.2.total = %v", got)
	}
	if got := f.Value("sum"); got != 15.0 {
		t.Fatalf("sum = %v after add", got)
	}
	if !mustState(t, f, "lines.2.note").Hidden {
		t.Fatalf("new item with qty 1 should hide its note")
	}

	if err := f.RemoveItem("lines", 0); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if got := f.Value("sum"); got != 9.0 {
		t.Fatalf("sum = %v after remove", got)
	}
	if _, ok := f.State("lines.2.qty"); ok {
		t.Fatalf("removed item instances should be discarded")
	}

	if _, err := f.AddItem("sum"); !errors.Is(err, ErrNotArray) {
		t.Fatalf("expected ErrNotArray, got %v", err)
	}
	if err := f.RemoveItem("lines", 7); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

const orderLinesForm = `
fields:
  - key: lines
    type: array
    fields:
      - {key: qty, type: number, required: true}
      - {key: price, type: number}
      - key: total
        type: number
        logic:
          - type: derivation
            expression: item.price * 2
`

func TestRemovingLastItemDiscardsItsFields(t *testing.T) {
	t.Parallel()

	f := newForm(t, orderLinesForm, WithValues(map[string]any{
		"lines": []any{map[string]any{"price": 2}},
	}))
	if f.Valid() {
		t.Fatalf("missing required qty should make the form invalid")
	}
	if got := f.Value("lines.0.total"); got != 4.0 {
		t.Fatalf("lines.0.total = %v", got)
	}

	if err := f.RemoveItem("lines", 0); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if n := len(asSlice(f.Value("lines"))); n != 0 {
		t.Fatalf("expected no items, got %d", n)
	}
	if _, ok := f.State("lines.0.qty"); ok {
		t.Fatalf("removed item instances should be discarded")
	}
	if !f.Valid() || len(f.Errors()) != 0 {
		t.Fatalf("removed item should not be validated, errors = %+v", f.Errors())
	}
	var paths []string
	for _, view := range f.Fields() {
		paths = append(paths, view.Path)
	}
	if diff := cmp.Diff([]string{"lines"}, paths); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if got := f.Value("lines.0.total"); got != nil {
		t.Fatalf("stale derivation wrote lines.0.total = %v", got)
	}
}

func TestFormStateDrivesSubmitButton(t *testing.T) {
	t.Parallel()

	f := newForm(t, `
fields:
  - {key: email, type: input, required: true, email: true}
  - key: submit
    type: button
    logic:
      - type: disabled
        condition:
          type: or
          conditions:
            - {type: formState, state: formInvalid}
            - {type: formState, state: formSubmitting}
`)

	if f.Valid() || !mustState(t, f, "submit").Disabled {
		t.Fatalf("empty required email should disable submit")
	}
	wantErrs := []validation.Issue{{Path: "email", Kind: validation.KindRequired, Message: "is required"}}
	if diff := cmp.Diff(wantErrs, f.Errors()); diff != "" {
		t.Fatalf("unexpected errors (-want +got):\n%s", diff)
	}

	mustSet(t, f, "email", "a@b.io")
	if !f.Valid() || mustState(t, f, "submit").Disabled {
		t.Fatalf("valid form should enable submit")
	}

	f.SetSubmitting(true)
	if !mustState(t, f, "submit").Disabled {
		t.Fatalf("submitting form should disable submit")
	}
	f.SetSubmitting(false)
	if mustState(t, f, "submit").Disabled {
		t.Fatalf("submit should be enabled again")
	}
}

func TestPagesInheritanceAndConditionalRequired(t *testing.T) {
	t.Parallel()

	f := newForm(t, `
fields:
  - key: details
    type: page
    fields:
      - {key: kind, type: select, defaultValue: person}
      - key: vat
        type: input
        logic:
          - type: required
            condition: {type: fieldValue, fieldPath: kind, value: company}
  - key: extra
    type: page
    fields:
      - key: company
        type: group
        hidden: true
        fields:
          - {key: name, type: input, required: true}
`)

	if f.PageCount() != 2 || !f.Valid() {
		t.Fatalf("pages=%d valid=%v errors=%v", f.PageCount(), f.Valid(), f.Errors())
	}
	name := mustState(t, f, "company.name")
	if !name.Hidden || !name.Required {
		t.Fatalf("company.name state = %+v", name)
	}
	view, _ := f.Field("company.name")
	if len(view.Issues) != 1 {
		t.Fatalf("hidden fields are still validated, got %+v", view.Issues)
	}

	mustSet(t, f, "kind", "company")
	if !mustState(t, f, "vat").Required || f.Valid() {
		t.Fatalf("company kind should require vat")
	}

	if err := f.SetPage(1); err != nil {
		t.Fatalf("SetPage returned error: %v", err)
	}
	if f.Page() != 1 {
		t.Fatalf("Page = %d", f.Page())
	}
	if err := f.SetPage(2); !errors.Is(err, ErrPageRange) {
		t.Fatalf("expected ErrPageRange, got %v", err)
	}
}

func TestForeignStoreWritesTriggerPasses(t *testing.T) {
	t.Parallel()

	s := store.NewMapStore(map[string]any{"a": 1})
	f := newForm(t, `
fields:
  - {key: a, type: number}
  - key: b
    type: number
    logic: [{type: derivation, expression: a * 2}]
`, WithStore(s))

	if got := s.Get("b"); got != 2.0 {
		t.Fatalf("b = %v", got)
	}
	if err := s.Set("a", 5); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if got := f.Value("b"); got != 10.0 {
		t.Fatalf("b = %v after foreign write", got)
	}
}

func TestHTTPConditionGovernsVisibility(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		role := r.URL.Query().Get("role")
		_ = json.NewEncoder(w).Encode(map[string]any{"hideAdminPanel": role != "admin"})
	}))
	t.Cleanup(srv.Close)

	f := newForm(t, strings.ReplaceAll(`
fields:
  - {key: role, type: select, defaultValue: admin}
  - key: adminPanel
    type: group
    logic:
      - type: hidden
        condition:
          type: http
          http:
            url: SERVER/permissions
            params: {role: role}
            responsePath: response.hideAdminPanel
            pendingValue: true
            debounceMs: 5
    fields:
      - {key: setting, type: input}
`, "SERVER", srv.URL), WithHTTPClient(srv.Client()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !mustState(t, f, "adminPanel").Hidden {
		t.Fatalf("pending value should hide the panel before resolution")
	}
	if err := f.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if mustState(t, f, "adminPanel").Hidden || mustState(t, f, "adminPanel.setting").Hidden {
		t.Fatalf("admin should see the panel")
	}

	mustSet(t, f, "role", "viewer")
	if !mustState(t, f, "adminPanel").Hidden {
		t.Fatalf("a new key must revert to the pending value")
	}
	if err := f.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if !mustState(t, f, "adminPanel.setting").Hidden {
		t.Fatalf("viewer should not see the panel")
	}

	mustSet(t, f, "role", "admin")
	if mustState(t, f, "adminPanel").Hidden {
		t.Fatalf("cached admin answer should apply synchronously")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestCloseAndContextCancel(t *testing.T) {
	t.Parallel()

	f := newForm(t, subscriptionForm)
	if f.ID() == "" {
		t.Fatalf("missing instance id")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := f.SetValue("subscriptionType", "premium"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	def := testsupport.MustCompose(t, subscriptionForm)
	ctx, cancel := context.WithCancel(context.Background())
	g, err := New(ctx, def, WithLogger(testsupport.Logger()))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for !g.isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("form not closed after context cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

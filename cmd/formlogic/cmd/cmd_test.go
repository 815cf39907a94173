package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formlogic/pkg/schema"
	"github.com/goliatone/go-formlogic/pkg/testsupport"
)

const priceForm = `
fields:
  - key: hasDiscount
    type: checkbox
    defaultValue: false
  - key: isPremiumMember
    type: checkbox
    defaultValue: false
  - key: regularPrice
    type: number
    defaultValue: 100
    logic:
      - type: hidden
        condition:
          type: and
          conditions:
            - {type: fieldValue, fieldPath: hasDiscount, value: true}
            - {type: fieldValue, fieldPath: isPremiumMember, value: true}
  - key: email
    type: input
    email: true
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	t.Parallel()

	path := testsupport.WriteFile(t, "price.yaml", priceForm)
	out, err := run(t, "check", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "ok (4 fields, 0 pages)") {
		t.Fatalf("unexpected output %q", out)
	}

	bad := testsupport.WriteFile(t, "bad.yaml", "fields:\n  - type: input\n")
	if _, err := run(t, "check", bad); err == nil {
		t.Fatalf("expected composition error")
	}
}

func TestEvalCommand(t *testing.T) {
	t.Parallel()

	path := testsupport.WriteFile(t, "price.yaml", priceForm)
	values := testsupport.WriteFile(t, "values.json", `{"hasDiscount": true}`)
	out, err := run(t, "eval", path, "--values", values, "--set", "isPremiumMember=true", "--set", "email=not-an-email")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	var res evalResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	want := map[string]any{"hasDiscount": true, "isPremiumMember": true, "email": "not-an-email"}
	if diff := cmp.Diff(want, res.Submission); diff != "" {
		t.Fatalf("submission mismatch (-want +got):\n%s", diff)
	}
	if res.Valid || len(res.Errors) != 1 || res.Errors[0].Path != "email" {
		t.Fatalf("expected one email issue, got valid=%v errors=%v", res.Valid, res.Errors)
	}
}

func TestEvalRejectsBadAssignment(t *testing.T) {
	t.Parallel()

	path := testsupport.WriteFile(t, "price.yaml", priceForm)
	if _, err := run(t, "eval", path, "--set", "novalue"); err == nil {
		t.Fatalf("expected error for malformed --set")
	}
}

func TestParseAssignment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw   string
		path  string
		value any
	}{
		{"a.b=1", "a.b", 1.0},
		{"flag=true", "flag", true},
		{"name=Ada", "name", "Ada"},
		{"list=[1,2]", "list", []any{1.0, 2.0}},
		{"empty=", "empty", ""},
	}
	for _, tc := range cases {
		path, value, err := parseAssignment(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if path != tc.path {
			t.Fatalf("%s: path %q, want %q", tc.raw, path, tc.path)
		}
		if diff := cmp.Diff(tc.value, value); diff != "" {
			t.Fatalf("%s: value mismatch (-want +got):\n%s", tc.raw, diff)
		}
	}
}

const usersAPI = `
openapi: 3.0.3
info: {title: Users, version: 1.0.0}
paths:
  /users:
    post:
      operationId: createUser
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [email]
              properties:
                email: {type: string, format: email}
                age: {type: integer, minimum: 18}
      responses:
        '201': {description: created}
`

func TestImportOpenAPICommand(t *testing.T) {
	t.Parallel()

	path := testsupport.WriteFile(t, "users.yaml", usersAPI)
	out, err := run(t, "import-openapi", path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "createUser\tPOST /users") {
		t.Fatalf("unexpected listing %q", out)
	}

	out, err = run(t, "import-openapi", path, "--operation", "createUser")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	testsupport.CompareYAMLGolden(t, filepath.Join("testdata", "create_user.golden.yaml"), []byte(out))
	doc, err := schema.Parse([]byte(out), "imported.yaml")
	if err != nil {
		t.Fatalf("parse imported form: %v\n%s", err, out)
	}
	def, err := schema.Compose(doc, schema.Options{})
	if err != nil {
		t.Fatalf("compose imported form: %v", err)
	}
	email, ok := def.Node("email")
	if !ok || !email.Static.Required || len(email.Validators) != 2 {
		t.Fatalf("expected required email with two validators, got %+v", email)
	}
	if age, ok := def.Node("age"); !ok || len(age.Validators) != 1 {
		t.Fatalf("expected age with a min validator, got %+v", age)
	}
}

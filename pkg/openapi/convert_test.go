package openapi_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/openapi"
	"github.com/goliatone/go-formrules/pkg/rulespec"
)

const petstore = `
openapi: 3.0.3
info:
  title: Accounts
  version: 1.0.0
paths:
  /users:
    post:
      operationId: createUser
      summary: Create a user
      x-formrules:
        mode: collect_all
        debounce: 250ms
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [email, username]
              properties:
                email:
                  type: string
                  format: email
                  title: Email address
                  x-formrules:
                    order: 1
                    rules: "exists:users"
                username:
                  type: string
                  minLength: 3
                  maxLength: 20
                  pattern: "^[a-z0-9_]+$"
                  x-formrules:
                    order: 0
                    debounce: 400
                age:
                  type: integer
                  minimum: 18
                  maximum: 120
                plan:
                  type: string
                  enum: [free, pro]
                address:
                  type: object
                  required: [city]
                  properties:
                    city:
                      type: string
                    zip:
                      type: string
                      x-formrules:
                        conditions: "address.city != ''"
    get:
      summary: List users
  /ping:
    put:
      requestBody:
        content:
          application/x-www-form-urlencoded:
            schema:
              type: object
              properties:
                note:
                  type: string
`

func ruleStrings(t *testing.T, spec rulespec.Spec) []string {
	t.Helper()
	var out []string
	for _, r := range spec.Rules() {
		out = append(out, r.String())
	}
	return out
}

func TestFormFromDocument(t *testing.T) {
	t.Parallel()

	form, err := openapi.FormFromDocument(context.Background(), []byte(petstore), "createUser")
	if err != nil {
		t.Fatalf("FormFromDocument: %v", err)
	}

	if form.ID != "createUser" || form.Endpoint != "/users" || form.Method != "POST" {
		t.Fatalf("unexpected form header: %+v", form)
	}
	if form.Validation.Mode != "collect_all" || form.Validation.Debounce.Std() != 250*time.Millisecond {
		t.Fatalf("unexpected validation config: %+v", form.Validation)
	}

	var names []string
	for _, f := range form.Fields {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"username", "email", "address", "age", "plan"}, names); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}

	byName := make(map[string]model.Field, len(form.Fields))
	for _, f := range form.Fields {
		byName[f.Name] = f
	}

	want := map[string][]string{
		"username": {"required", "min:3", "max:20", "regex:^[a-z0-9_]+$"},
		"email":    {"required", "email", "exists:users"},
		"age":      {"nullable", "integer", "min:18", "max:120"},
		"plan":     {"nullable", "in:free,pro"},
	}
	for name, rules := range want {
		if diff := cmp.Diff(rules, ruleStrings(t, byName[name].Rules)); diff != "" {
			t.Fatalf("%s rules mismatch (-want +got):\n%s", name, diff)
		}
	}

	if byName["email"].Label != "Email address" {
		t.Fatalf("expected title as label, got %q", byName["email"].Label)
	}
	if byName["username"].Debounce.Std() != 400*time.Millisecond {
		t.Fatalf("expected 400ms debounce, got %s", byName["username"].Debounce)
	}

	address := byName["address"]
	if address.Type != model.FieldTypeObject || len(address.Nested) != 2 {
		t.Fatalf("expected object with two children, got %+v", address)
	}
	if address.Nested[0].Name != "city" || address.Nested[1].Conditions != "address.city != ''" {
		t.Fatalf("unexpected nested fields: %+v", address.Nested)
	}
	if !address.Rules.Empty() {
		t.Fatalf("objects should carry no rules, got %v", ruleStrings(t, address.Rules))
	}
}

func TestFormFromDocument_FallbackID(t *testing.T) {
	t.Parallel()

	form, err := openapi.FormFromDocument(context.Background(), []byte(petstore), "put:/ping")
	if err != nil {
		t.Fatalf("FormFromDocument: %v", err)
	}
	if len(form.Fields) != 1 || form.Fields[0].Name != "note" {
		t.Fatalf("unexpected fields: %+v", form.Fields)
	}
}

func TestFormFromDocument_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := openapi.FormFromDocument(ctx, []byte(petstore), "missing"); !errors.Is(err, openapi.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
	if _, err := openapi.FormFromDocument(ctx, []byte(petstore), "get:/users"); !errors.Is(err, openapi.ErrNoRequestSchema) {
		t.Fatalf("expected ErrNoRequestSchema, got %v", err)
	}
	if _, err := openapi.FormFromDocument(ctx, []byte("openapi: ["), "x"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOperations(t *testing.T) {
	t.Parallel()

	ops, err := openapi.Operations(context.Background(), []byte(petstore))
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	var ids []string
	for _, op := range ops {
		ids = append(ids, op.ID)
	}
	if diff := cmp.Diff([]string{"put:/ping", "get:/users", "createUser"}, ids); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	if err := os.WriteFile(path, []byte(petstore), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fromFile, err := openapi.Read(ctx, openapi.SourceFromFile(path), nil)
	if err != nil {
		t.Fatalf("Read file: %v", err)
	}
	fsys := fstest.MapFS{"api.yaml": {Data: []byte(petstore)}}
	fromFS, err := openapi.Read(ctx, openapi.SourceFromFS(fsys, "api.yaml"), nil)
	if err != nil {
		t.Fatalf("Read fs: %v", err)
	}
	if string(fromFile) != petstore || string(fromFS) != petstore {
		t.Fatal("source contents mismatch")
	}

	if _, err := openapi.SourceFromURL("not a url"); err == nil {
		t.Fatal("expected invalid URL error")
	}
}

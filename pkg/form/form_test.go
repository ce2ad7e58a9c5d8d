package form_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/remote"
	"github.com/goliatone/go-formrules/pkg/rulespec"
	"github.com/goliatone/go-formrules/pkg/testsupport"
	"github.com/goliatone/go-formrules/pkg/validation"
)

func rules(t *testing.T, raw any) rulespec.Spec {
	t.Helper()
	spec, err := rulespec.NewSpec(raw)
	if err != nil {
		t.Fatalf("NewSpec(%v): %v", raw, err)
	}
	return spec
}

// recorder is a synchronous rule that records every value it checks.
type recorder struct {
	mu     sync.Mutex
	values []any
}

func (p *recorder) definition(name string) validation.Definition {
	return validation.Definition{
		Name: name,
		Refs: validation.AllParams,
		Check: func(_ context.Context, value any, _ validation.Args) (bool, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.values = append(p.values, value)
			return true, nil
		},
	}
}

func (p *recorder) calls() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.values...)
}

func TestForm_RequiredMin(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID:     "signup",
		Fields: []model.Field{{Name: "username", Rules: rules(t, "required|min:3")}},
	})
	username := testsupport.MustField(t, f, "username")

	if err := username.SetValue("ab"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if username.State() != form.Invalid {
		t.Fatalf("expected invalid, got %s", username.State())
	}
	if diff := cmp.Diff([]string{"The username must be at least 3 characters."}, username.Errors()); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if !username.Dirty() {
		t.Fatalf("expected field to be dirty")
	}

	if err := username.SetValue("abc"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if username.State() != form.Valid {
		t.Fatalf("expected valid, got %s", username.State())
	}
	if len(username.Errors()) != 0 {
		t.Fatalf("expected messages to be cleared, got %v", username.Errors())
	}
}

func TestForm_FieldModeOverride(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "modes",
		Fields: []model.Field{
			{Name: "first", Rules: rules(t, "min:5|email")},
			{Name: "second", Rules: rules(t, "min:5|email"), Mode: "collect_all"},
		},
	}, form.WithMode(validation.StopOnFirst))

	ctx := context.Background()
	for path, want := range map[string]int{"first": 1, "second": 2} {
		fl := testsupport.MustField(t, f, path)
		_ = fl.SetValue("abc")
		result, err := fl.Validate(ctx)
		if err != nil {
			t.Fatalf("Validate(%s): %v", path, err)
		}
		if got := len(result.Failures()); got != want {
			t.Fatalf("%s: expected %d failures, got %d", path, want, got)
		}
	}
}

func TestForm_DebounceRunsOnceWithLastValue(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewClock()
	p := &recorder{}
	registry := validation.NewRegistry()
	registry.MustRegister(p.definition("record"))

	f := testsupport.MustForm(t, model.FormModel{
		ID:     "search",
		Fields: []model.Field{{Name: "query", Rules: rules(t, "record")}},
	}, form.WithRegistry(registry), form.WithDebounce(300*time.Millisecond), form.WithClock(clock))
	query := testsupport.MustField(t, f, "query")

	for _, v := range []string{"g", "go", "gol", "gola"} {
		if err := query.SetValue(v); err != nil {
			t.Fatalf("SetValue: %v", err)
		}
		clock.Advance(100 * time.Millisecond)
	}
	if calls := p.calls(); len(calls) != 0 {
		t.Fatalf("expected no validation inside the window, got %v", calls)
	}
	if clock.Pending() != 1 {
		t.Fatalf("expected a single armed timer, got %d", clock.Pending())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Settle(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Settle to wait for the pending timer, got %v", err)
	}

	clock.Advance(300 * time.Millisecond)
	if diff := cmp.Diff([]any{"gola"}, p.calls()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	testsupport.Settle(t, f)
}

func TestForm_RuleDebounceOverridesField(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "debounce",
		Fields: []model.Field{
			{Name: "a", Rules: rules(t, "required"), Debounce: model.Duration(200 * time.Millisecond)},
			{Name: "b", Rules: rules(t, "required|min:3,debounce=50"), Debounce: model.Duration(200 * time.Millisecond)},
			{Name: "c", Rules: rules(t, "required")},
		},
		Validation: model.ValidationConfig{Debounce: model.Duration(time.Second)},
	})

	want := map[string]time.Duration{"a": 200 * time.Millisecond, "b": 50 * time.Millisecond, "c": time.Second}
	for path, d := range want {
		if got := testsupport.MustField(t, f, path).Debounce(); got != d {
			t.Fatalf("%s: expected debounce %v, got %v", path, d, got)
		}
	}
}

type gatedCheck struct {
	entered chan string
	gates   map[string]chan bool
}

func (g *gatedCheck) fn(_ context.Context, req remote.Request) (any, error) {
	value, _ := req.Value.(string)
	g.entered <- value
	exists := <-g.gates[value]
	return map[string]any{"exists": exists}, nil
}

func TestForm_AsyncRaceLastIssuedWins(t *testing.T) {
	t.Parallel()

	check := &gatedCheck{
		entered: make(chan string, 2),
		gates:   map[string]chan bool{"first": make(chan bool), "second": make(chan bool)},
	}
	f := testsupport.MustForm(t, model.FormModel{
		ID:     "race",
		Fields: []model.Field{{Name: "username", Rules: rules(t, "exists:users")}},
	}, form.WithEndpoints(remote.Endpoints{"exists": {Func: check.fn}}))
	username := testsupport.MustField(t, f, "username")

	validated := make(chan form.Event, 4)
	f.On(form.EventValidated, func(ev form.Event) { validated <- ev })

	_ = username.SetValue("first")
	<-check.entered
	if username.State() != form.Validating {
		t.Fatalf("expected validating, got %s", username.State())
	}
	_ = username.SetValue("second")
	<-check.entered

	// The newer check resolves first and reports the name as free.
	check.gates["second"] <- false
	ev := <-validated
	if ev.Value != "second" || ev.State != form.Valid {
		t.Fatalf("unexpected validated event %#v", ev)
	}

	// The stale check arrives late with a failure and must be discarded.
	check.gates["first"] <- true
	testsupport.Settle(t, f)

	if username.State() != form.Valid {
		t.Fatalf("expected the latest outcome to stick, got %s", username.State())
	}
	if len(username.Errors()) != 0 {
		t.Fatalf("expected no messages, got %v", username.Errors())
	}
	select {
	case ev := <-validated:
		t.Fatalf("superseded cycle published %#v", ev)
	default:
	}
}

func TestForm_MutationsSupersedeInFlightCheck(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(t *testing.T, f *form.Form)
		want   any
	}{
		{name: "reset", mutate: func(_ *testing.T, f *form.Form) { f.Reset() }},
		{name: "field reset", mutate: func(t *testing.T, f *form.Form) { testsupport.MustField(t, f, "username").Reset() }},
		{name: "load", mutate: func(_ *testing.T, f *form.Form) { f.Load(map[string]any{"username": "fresh"}) }, want: "fresh"},
		{name: "clear", mutate: func(_ *testing.T, f *form.Form) { f.Clear() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			check := &gatedCheck{
				entered: make(chan string, 1),
				gates:   map[string]chan bool{"taken": make(chan bool)},
			}
			f := testsupport.MustForm(t, model.FormModel{
				ID:     "supersede",
				Fields: []model.Field{{Name: "username", Rules: rules(t, "exists:users")}},
			}, form.WithEndpoints(remote.Endpoints{"exists": {Func: check.fn}}))
			username := testsupport.MustField(t, f, "username")

			validated := make(chan form.Event, 2)
			f.On(form.EventValidated, func(ev form.Event) { validated <- ev })

			_ = username.SetValue("taken")
			<-check.entered
			tc.mutate(t, f)

			// The check for the old value reports it as taken after the mutation.
			check.gates["taken"] <- true
			testsupport.Settle(t, f)

			if got := username.State(); got != form.Idle {
				t.Fatalf("expected idle after %s, got %s", tc.name, got)
			}
			if username.Validated() {
				t.Fatalf("stale result marked the field validated")
			}
			if errs := username.Errors(); len(errs) != 0 {
				t.Fatalf("expected no messages, got %v", errs)
			}
			if diff := cmp.Diff(tc.want, username.Value()); diff != "" {
				t.Fatalf("value mismatch (-want +got):\n%s", diff)
			}
			select {
			case ev := <-validated:
				t.Fatalf("superseded cycle published %#v", ev)
			default:
			}
		})
	}
}

func TestField_ValidateWithoutRulesFollowsAvailability(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "company",
		Fields: []model.Field{
			{Name: "business", Default: false},
			{Name: "company", Conditions: "business == true"},
		},
	})
	company := testsupport.MustField(t, f, "company")
	ctx := context.Background()

	if _, err := company.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if company.Validated() {
		t.Fatalf("hidden field without rules was marked validated")
	}

	if err := f.SetValue("business", true); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	testsupport.Settle(t, f)
	if !company.Available() {
		t.Fatalf("expected company to be available")
	}
	if _, err := company.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !company.Validated() || company.State() != form.Valid {
		t.Fatalf("expected visible field to validate, got validated=%v state=%s", company.Validated(), company.State())
	}
}

func TestForm_DependentsRevalidateOncePerChange(t *testing.T) {
	t.Parallel()

	p := &recorder{}
	registry := validation.NewRegistry()
	registry.MustRegister(p.definition("record"))

	f := testsupport.MustForm(t, model.FormModel{
		ID: "deps",
		Fields: []model.Field{
			{Name: "a"},
			{Name: "c"},
			{Name: "b", Rules: rules(t, "record:a,c")},
		},
	}, form.WithRegistry(registry))
	b := testsupport.MustField(t, f, "b")

	if diff := cmp.Diff([]string{"b"}, f.Dependents("a")); diff != "" {
		t.Fatalf("dependents mismatch (-want +got):\n%s", diff)
	}

	// Fields that were never validated are left alone.
	_ = f.SetValue("a", "x")
	if n := len(p.calls()); n != 0 {
		t.Fatalf("expected untouched dependent to be skipped, got %d calls", n)
	}

	if _, err := b.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	_ = f.SetValue("a", "y")
	if n := len(p.calls()); n != 2 {
		t.Fatalf("expected one re-validation per change, got %d calls", n)
	}

	f.Update(map[string]any{"a": "z", "c": "w"})
	if n := len(p.calls()); n != 3 {
		t.Fatalf("expected one re-validation for the whole batch, got %d calls", n)
	}
	if b.Dirty() {
		t.Fatalf("dependent should not become dirty")
	}
}

func TestForm_SameRuleFollowsReferencedField(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "passwords",
		Fields: []model.Field{
			{Name: "password", Rules: rules(t, "required")},
			{Name: "password_confirmation", Rules: rules(t, map[string]any{"same": "password"})},
		},
	})
	confirm := testsupport.MustField(t, f, "password_confirmation")

	_ = f.SetValue("password", "secret")
	_ = confirm.SetValue("secret")
	if confirm.State() != form.Valid {
		t.Fatalf("expected valid confirmation, got %s", confirm.State())
	}

	_ = f.SetValue("password", "changed")
	if confirm.State() != form.Invalid {
		t.Fatalf("expected confirmation to be re-validated, got %s", confirm.State())
	}
	if diff := cmp.Diff([]string{"The password confirmation and password must match."}, confirm.Errors()); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestForm_HiddenFieldsAreNotValidated(t *testing.T) {
	t.Parallel()

	no := false
	f := testsupport.MustForm(t, model.FormModel{
		ID: "newsletter",
		Fields: []model.Field{
			{Name: "newsletter", Default: false},
			{Name: "email", Rules: rules(t, "required|email"), Conditions: "newsletter == true"},
			{Name: "token", Default: "abc", Submit: &no},
		},
	})
	email := testsupport.MustField(t, f, "email")

	var availability []bool
	f.On(form.EventAvailability, func(ev form.Event) {
		if ev.Field == "email" {
			availability = append(availability, ev.Available)
		}
	})

	valid, err := f.Validate(context.Background())
	if err != nil || !valid {
		t.Fatalf("expected hidden email to be skipped, got valid=%v err=%v", valid, err)
	}
	if email.Available() || email.State() != form.Valid {
		t.Fatalf("expected hidden email to report valid")
	}

	_ = f.SetValue("newsletter", true)
	valid, err = f.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid {
		t.Fatalf("expected visible empty email to fail")
	}
	if diff := cmp.Diff(map[string][]string{"email": {"The email field is required."}}, f.Errors()); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}

	_ = f.SetValue("newsletter", false)
	if f.Invalid() {
		t.Fatalf("hiding the field should make the form valid")
	}
	if diff := cmp.Diff([]bool{true, false}, availability); diff != "" {
		t.Fatalf("availability events mismatch (-want +got):\n%s", diff)
	}

	want := map[string]any{"newsletter": false}
	if diff := cmp.Diff(want, f.Filtered()); diff != "" {
		t.Fatalf("filtered mismatch (-want +got):\n%s", diff)
	}
	all := map[string]any{"newsletter": false, "email": nil, "token": "abc"}
	if diff := cmp.Diff(all, f.Data()); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestForm_InjectedErrorsCoexistWithRuleMessages(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "server",
		Fields: []model.Field{
			{Name: "username", Rules: rules(t, "min:3")},
			{Name: "owner", Type: model.FieldTypeGroup, Nested: []model.Field{{Name: "email"}}},
		},
	})
	username := testsupport.MustField(t, f, "username")

	err := f.InjectErrors(map[string]any{
		"data":          map[string]any{"username": []any{"<b>Username</b> is reserved"}},
		"#/owner/email": "Email already registered",
		"__all__":       "Try again later",
		"unknown":       "Lost field",
	})
	if err != nil {
		t.Fatalf("InjectErrors: %v", err)
	}

	_ = username.SetValue("ab")
	want := []string{"Username is reserved", "The username must be at least 3 characters."}
	if diff := cmp.Diff(want, username.Errors()); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if got := testsupport.MustField(t, f, "owner.email").Error(); got != "Email already registered" {
		t.Fatalf("unexpected nested error %q", got)
	}
	if diff := cmp.Diff([]string{"Try again later", "Lost field"}, f.FormErrors()); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}

	f.ClearInjected()
	if diff := cmp.Diff([]string{"The username must be at least 3 characters."}, username.Errors()); diff != "" {
		t.Fatalf("after ClearInjected (-want +got):\n%s", diff)
	}
	if len(f.FormErrors()) != 0 || testsupport.MustField(t, f, "owner.email").Invalid() {
		t.Fatalf("expected injected messages to be cleared")
	}

	if err := f.InjectErrors(42); !errors.Is(err, form.ErrUnsupportedPayload) {
		t.Fatalf("expected ErrUnsupportedPayload, got %v", err)
	}
}

func TestForm_NestedGroups(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "nested",
		Fields: []model.Field{
			{Name: "owner", Type: model.FieldTypeGroup, Nested: []model.Field{
				{Name: "name", Default: "Ada"},
				{Name: "email", Rules: rules(t, []string{"required", "email"})},
			}},
		},
	})
	owner := testsupport.MustField(t, f, "owner")

	if err := owner.SetValue(map[string]any{}); !errors.Is(err, form.ErrNestedValue) {
		t.Fatalf("expected ErrNestedValue, got %v", err)
	}
	if err := f.SetValue("owner.missing", 1); !errors.Is(err, form.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}

	f.Load(map[string]any{"owner": map[string]any{"email": "ada@example.com"}})
	want := map[string]any{"owner": map[string]any{"name": nil, "email": "ada@example.com"}}
	if diff := cmp.Diff(want, f.Data()); diff != "" {
		t.Fatalf("loaded data mismatch (-want +got):\n%s", diff)
	}
	if owner.Dirty() || owner.State() != form.Idle {
		t.Fatalf("load must not dirty or validate, got dirty=%v state=%s", owner.Dirty(), owner.State())
	}

	_ = f.SetValue("owner.email", "nope")
	if owner.State() != form.Invalid || !owner.Invalid() {
		t.Fatalf("group should reflect invalid child, got %s", owner.State())
	}

	owner.Reset()
	want = map[string]any{"owner": map[string]any{"name": "Ada", "email": nil}}
	if diff := cmp.Diff(want, f.Data()); diff != "" {
		t.Fatalf("reset data mismatch (-want +got):\n%s", diff)
	}
	if owner.Dirty() || owner.Invalid() || len(testsupport.MustField(t, f, "owner.email").Errors()) != 0 {
		t.Fatalf("reset should clear dirty flags and messages")
	}
}

func TestForm_ClearRevalidatesKnownFields(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{
		ID: "clear",
		Fields: []model.Field{
			{Name: "title", Rules: rules(t, "required"), Default: "draft"},
			{Name: "body", Rules: rules(t, "required"), Default: "text"},
		},
	})
	if _, err := testsupport.MustField(t, f, "title").Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var cleared bool
	unsubscribe := f.On(form.EventClear, func(form.Event) { cleared = true })
	f.Clear()
	unsubscribe()

	if !cleared {
		t.Fatalf("expected clear event")
	}
	if got := testsupport.MustField(t, f, "title").State(); got != form.Invalid {
		t.Fatalf("expected validated field to be re-validated, got %s", got)
	}
	if got := testsupport.MustField(t, f, "body").State(); got != form.Idle {
		t.Fatalf("expected untouched field to stay idle, got %s", got)
	}

	f.Reset()
	if f.Invalid() {
		t.Fatalf("reset form should not be invalid")
	}
	if got := testsupport.MustField(t, f, "title").Value(); got != "draft" {
		t.Fatalf("expected default after reset, got %v", got)
	}
}

func TestForm_RemoteExists(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"exists": r.URL.Query().Get("value") == "taken"})
	}))
	defer srv.Close()

	doc := []byte(`
id: signup
endpoints:
  exists:
    url: ` + srv.URL + `
    method: GET
fields:
  - name: username
    rules: "required|exists:users"
`)
	def, err := model.Load(doc)
	if err != nil {
		t.Fatalf("model.Load: %v", err)
	}
	f := testsupport.MustForm(t, def, form.WithHTTPClient(srv.Client()))
	username := testsupport.MustField(t, f, "username")
	ctx := context.Background()

	_ = username.SetValue("taken")
	testsupport.Settle(t, f)
	if username.State() != form.Invalid {
		t.Fatalf("expected taken username to be invalid, got %s", username.State())
	}
	if got := username.Error(); got != "The username has already been taken." {
		t.Fatalf("unexpected message %q", got)
	}

	_ = username.SetValue("free")
	if _, err := username.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if username.State() != form.Valid {
		t.Fatalf("expected free username to be valid, got %s", username.State())
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	def := model.FormModel{
		ID:        "broken",
		Endpoints: remote.Endpoints{"exists": {URL: "https://example.com/exists"}},
		Fields:    []model.Field{{Name: "username", Rules: rules(t, "exists:users")}},
	}
	var cfgErr *remote.ConfigError
	if _, err := form.New(def); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	def.Endpoints = nil
	cfgErr = nil
	if _, err := form.New(def); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError without an endpoint, got %v", err)
	}
	if cfgErr.Rule != "exists" || cfgErr.Reason != "rule used but no endpoint configured" {
		t.Fatalf("unexpected config error %#v", cfgErr)
	}

	def.Fields = []model.Field{{Name: "username", Rules: rules(t, "required|unheard_of")}}
	if _, err := form.New(def); !errors.Is(err, validation.ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}

	bad := model.FormModel{ID: "cond", Fields: []model.Field{{Name: "a", Conditions: "b = 1"}}}
	if _, err := form.New(bad); err == nil {
		t.Fatalf("expected malformed condition to fail")
	}
}

func TestForm_MountRunsHooksOnce(t *testing.T) {
	t.Parallel()

	f := testsupport.MustForm(t, model.FormModel{ID: "mount", Fields: []model.Field{{Name: "a"}}})
	var runs int
	if err := f.OnMount(func(_ context.Context, f *form.Form) error {
		runs++
		return f.SetValue("a", "mounted")
	}); err != nil {
		t.Fatalf("OnMount: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.Mount(context.Background()); err != nil {
			t.Fatalf("Mount: %v", err)
		}
	}
	if runs != 1 {
		t.Fatalf("expected hook to run once, got %d", runs)
	}
	if got := testsupport.MustField(t, f, "a").Value(); got != "mounted" {
		t.Fatalf("unexpected value %v", got)
	}
}

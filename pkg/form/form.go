// Package form turns a form definition into live fields: it owns values,
// debounced and explicit validation, last-issued-wins handling of async
// rules, dependency-aware re-validation, availability and message bags.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/remote"
	"github.com/goliatone/go-formrules/pkg/validation"
	"github.com/goliatone/go-formrules/pkg/visibility"
)

// Form is a live instance of a form definition.
type Form struct {
	def model.FormModel

	mode        validation.Mode
	modeSet     bool
	debounce    time.Duration
	debounceSet bool
	endpoints   remote.Endpoints
	registry    *validation.Registry
	translator  validation.Translator
	locale      string
	templates   map[string]string
	logger      *slog.Logger
	client      *http.Client
	evaluator   visibility.Evaluator
	extras      map[string]any
	clock       Clock

	messages    *validation.Messages
	roots       []*Field
	fields      map[string]*Field
	order       []*Field
	deps        *tracker
	conditional bool
	events      bus

	errMu      sync.Mutex
	formErrors []string

	mountMu sync.Mutex
	hooks   []MountHook
	mounted bool

	flightMu sync.Mutex
	inflight int
	waiters  []chan struct{}
}

// MountHook runs once when the form is mounted.
type MountHook func(ctx context.Context, f *Form) error

// New builds a form from def. Unknown rules, malformed conditions and
// misconfigured remote endpoints (*remote.ConfigError) fail here.
func New(def model.FormModel, options ...Option) (*Form, error) {
	f := &Form{def: def}
	for _, opt := range options {
		if opt != nil {
			opt(f)
		}
	}
	f.applyDefaults()

	if !f.modeSet && def.Validation.Mode != "" {
		mode, err := validation.ParseMode(def.Validation.Mode)
		if err != nil {
			return nil, fmt.Errorf("form: %w", err)
		}
		f.mode = mode
	}
	if !f.debounceSet {
		f.debounce = def.Validation.Debounce.Std()
	}
	if f.locale == "" {
		f.locale = def.Validation.Locale
	}

	endpoints := remote.Endpoints{}
	for rule, ep := range def.Endpoints {
		endpoints[rule] = ep
	}
	for rule, ep := range f.endpoints {
		endpoints[rule] = ep
	}
	f.endpoints = endpoints

	registry := validation.NewRegistry()
	if f.registry != nil {
		registry = f.registry.Clone()
	}
	if err := remote.Register(registry, endpoints, f.client); err != nil {
		return nil, err
	}
	f.registry = registry

	templates := make(map[string]string, len(def.Validation.Messages)+len(f.templates))
	for k, v := range def.Validation.Messages {
		templates[k] = v
	}
	for k, v := range f.templates {
		templates[k] = v
	}
	msgOptions := []validation.MessageOption{validation.WithTemplates(templates)}
	if f.translator != nil {
		msgOptions = append(msgOptions, validation.WithTranslator(f.translator, f.locale))
	}
	f.messages = validation.NewMessages(msgOptions...)

	f.fields = make(map[string]*Field)
	roots, err := f.build(nil, def.Fields)
	if err != nil {
		return nil, err
	}
	f.roots = roots

	deps, err := newTracker(f)
	if err != nil {
		return nil, err
	}
	f.deps = deps
	f.refreshAvailability()
	return f, nil
}

func (f *Form) build(parent *Field, defs []model.Field) ([]*Field, error) {
	out := make([]*Field, 0, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("form: field without name under %q", pathOf(parent))
		}
		path := name
		if parent != nil {
			path = parent.path + "." + name
		}
		if _, dup := f.fields[path]; dup {
			return nil, fmt.Errorf("form: duplicate field %q", path)
		}

		fl := &Field{
			form:      f,
			def:       def,
			path:      path,
			parent:    parent,
			nested:    len(def.Nested) > 0 || def.Type.IsNested(),
			debounce:  f.debounce,
			available: true,
			bag:       validation.NewMessageBag(),
		}
		if def.Debounce > 0 {
			fl.debounce = def.Debounce.Std()
		}

		mode := f.mode
		if def.Mode != "" {
			parsed, err := validation.ParseMode(def.Mode)
			if err != nil {
				return nil, fmt.Errorf("form: field %q: %w", path, err)
			}
			mode = parsed
		}
		if rules := def.Rules.Rules(); len(rules) > 0 {
			for _, r := range rules {
				if err := remote.Configured(f.registry, r.Name); err != nil {
					return nil, fmt.Errorf("form: field %q: %w", path, err)
				}
			}
			set, err := validation.NewSet(path, rules, validation.SetOptions{
				Registry:  f.registry,
				Messages:  f.messages,
				Mode:      mode,
				Attribute: def.Label,
			})
			if err != nil {
				return nil, fmt.Errorf("form: %w", err)
			}
			fl.set = set
			if d, ok := set.Debounce(); ok {
				fl.debounce = d
			}
		}
		if strings.TrimSpace(def.Conditions) != "" {
			f.conditional = true
		}

		f.fields[path] = fl
		f.order = append(f.order, fl)

		if fl.nested {
			children, err := f.build(fl, def.Nested)
			if err != nil {
				return nil, err
			}
			fl.children = children
		} else {
			fl.defaultValue = def.Default
			fl.value = def.Default
		}
		out = append(out, fl)
	}
	return out, nil
}

func pathOf(fl *Field) string {
	if fl == nil {
		return ""
	}
	return fl.path
}

// Definition returns the definition the form was built from.
func (f *Form) Definition() model.FormModel { return f.def }

// Field returns the field at path.
func (f *Form) Field(path string) (*Field, bool) {
	fl, ok := f.fields[strings.TrimSpace(path)]
	return fl, ok
}

// Fields returns every field depth-first in declaration order.
func (f *Form) Fields() []*Field {
	return append([]*Field(nil), f.order...)
}

// SetValue sets the value of the field at path.
func (f *Form) SetValue(path string, value any) error {
	fl, ok := f.Field(path)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, path)
	}
	return fl.SetValue(value)
}

// resolve finds the field named by ref as seen from fl: an absolute path
// first, then a sibling or ancestor-sibling name.
func (f *Form) resolve(fl *Field, ref string) (*Field, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	if target, ok := f.fields[ref]; ok {
		return target, true
	}
	for p := fl.parent; p != nil; p = p.parent {
		if target, ok := f.fields[p.path+"."+ref]; ok {
			return target, true
		}
	}
	return nil, false
}

// On subscribes to a named event and returns the unsubscribe function.
func (f *Form) On(name string, h Handler) func() {
	return f.events.on(name, h)
}

// Emit publishes a host-defined event to subscribers.
func (f *Form) Emit(ev Event) {
	f.emit(ev)
}

func (f *Form) emit(ev Event) {
	f.events.emit(ev)
}

// OnMount registers a hook run by Mount. Hooks registered after mounting run
// immediately.
func (f *Form) OnMount(hook MountHook) error {
	f.mountMu.Lock()
	if !f.mounted {
		f.hooks = append(f.hooks, hook)
		f.mountMu.Unlock()
		return nil
	}
	f.mountMu.Unlock()
	return hook(context.Background(), f)
}

// Mount recomputes availability and runs the mount hooks once.
func (f *Form) Mount(ctx context.Context) error {
	f.mountMu.Lock()
	if f.mounted {
		f.mountMu.Unlock()
		return nil
	}
	f.mounted = true
	hooks := f.hooks
	f.hooks = nil
	f.mountMu.Unlock()

	f.refreshAvailability()
	for _, hook := range hooks {
		if err := hook(ctx, f); err != nil {
			return fmt.Errorf("form: mount: %w", err)
		}
	}
	return nil
}

// Data returns every value as a nested map keyed by field name.
func (f *Form) Data() map[string]any {
	out := make(map[string]any, len(f.roots))
	for _, fl := range f.roots {
		out[fl.def.Name] = fl.Value()
	}
	return out
}

// Filtered returns the values to submit: unavailable fields and fields
// declared with submit=false are left out.
func (f *Form) Filtered() map[string]any {
	return filtered(f.roots)
}

func filtered(fields []*Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, fl := range fields {
		if !fl.def.Submits() || !fl.Available() {
			continue
		}
		if fl.nested {
			out[fl.def.Name] = filtered(fl.children)
			continue
		}
		out[fl.def.Name] = fl.Value()
	}
	return out
}

// Invalid reports whether any available field is invalid or form-level
// messages are present.
func (f *Form) Invalid() bool {
	if len(f.FormErrors()) > 0 {
		return true
	}
	for _, fl := range f.roots {
		if fl.Invalid() {
			return true
		}
	}
	return false
}

// Errors returns the messages of every available field keyed by path.
func (f *Form) Errors() map[string][]string {
	out := make(map[string][]string)
	for _, fl := range f.order {
		if !fl.Available() {
			continue
		}
		if msgs := fl.Errors(); len(msgs) > 0 {
			out[fl.path] = msgs
		}
	}
	return out
}

// FormErrors returns injected messages that matched no field.
func (f *Form) FormErrors() []string {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return append([]string(nil), f.formErrors...)
}

// InjectErrors maps a server error payload onto fields. Keys may be dotted
// paths or JSON pointers; unknown keys become form-level messages.
func (f *Form) InjectErrors(payload any) error {
	raw, err := normalizePayload(payload)
	if err != nil {
		return err
	}
	mapping := mapErrors(f.fields, raw)
	for path, msgs := range mapping.Fields {
		f.fields[path].InjectErrors(msgs...)
	}
	if len(mapping.Form) > 0 {
		f.errMu.Lock()
		f.formErrors = mergeMessages(f.formErrors, mapping.Form...)
		f.errMu.Unlock()
	}
	return nil
}

// ClearInjected removes injected messages everywhere, including form-level
// ones. Rule messages are kept.
func (f *Form) ClearInjected() {
	for _, fl := range f.roots {
		fl.ClearInjected()
	}
	f.errMu.Lock()
	f.formErrors = nil
	f.errMu.Unlock()
}

// Load replaces all values from data. Leaves missing from data are cleared.
// Loading does not mark fields dirty and does not validate.
func (f *Form) Load(data map[string]any) {
	changes := make([]change, 0, len(f.order))
	for _, fl := range f.order {
		if fl.nested {
			continue
		}
		value, _ := lookupPath(data, fl.path)
		old := fl.store(value, false)
		changes = append(changes, change{field: fl, old: old, value: value})
	}
	f.propagate(changes, revalidateNone)
}

// Update applies a partial batch of values. Every changed field is validated
// once and every dependent at most once for the whole batch.
func (f *Form) Update(data map[string]any) {
	var changes []change
	for _, fl := range f.order {
		if fl.nested {
			continue
		}
		value, ok := lookupPath(data, fl.path)
		if !ok {
			continue
		}
		old := fl.store(value, true)
		changes = append(changes, change{field: fl, old: old, value: value})
	}
	f.propagate(changes, revalidateChanged)
}

// Reset restores every default, clears all messages and validation state.
func (f *Form) Reset() {
	var changes []change
	for _, fl := range f.roots {
		changes = fl.resetTree(changes)
	}
	f.errMu.Lock()
	f.formErrors = nil
	f.errMu.Unlock()
	f.propagate(changes, revalidateKnown)
	f.emit(Event{Name: EventReset})
}

// Clear empties every value.
func (f *Form) Clear() {
	var changes []change
	for _, fl := range f.roots {
		changes = fl.clearTree(changes)
	}
	f.propagate(changes, revalidateKnown)
	f.emit(Event{Name: EventClear})
}

// Validate validates every field with rules and waits for all cycles to
// settle. It reports whether the form is valid.
func (f *Form) Validate(ctx context.Context) (bool, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, fl := range f.order {
		if fl.set == nil {
			continue
		}
		group.Go(func() error {
			_, err := fl.Validate(groupCtx)
			if errors.Is(err, ErrSuperseded) {
				return nil
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}
	if err := f.Settle(ctx); err != nil {
		return false, err
	}
	return !f.Invalid(), nil
}

// Settle blocks until no debounce timer is pending and no cycle is running,
// or ctx is done.
func (f *Form) Settle(ctx context.Context) error {
	f.flightMu.Lock()
	if f.inflight == 0 {
		f.flightMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	f.flightMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Form) acquire() {
	f.flightMu.Lock()
	f.inflight++
	f.flightMu.Unlock()
}

func (f *Form) release() {
	f.flightMu.Lock()
	defer f.flightMu.Unlock()
	if f.inflight > 0 {
		f.inflight--
	}
	if f.inflight == 0 {
		for _, ch := range f.waiters {
			close(ch)
		}
		f.waiters = nil
	}
}

type change struct {
	field      *Field
	old, value any
}

type revalidation int

const (
	// revalidateNone only refreshes availability (Load).
	revalidateNone revalidation = iota
	// revalidateChanged validates the changed fields and validated dependents.
	revalidateChanged
	// revalidateKnown only re-validates fields that were validated before.
	revalidateKnown
)

// propagate announces changes, refreshes availability and schedules the
// resulting validations, each field at most once per batch.
func (f *Form) propagate(changes []change, mode revalidation) {
	for _, c := range changes {
		f.emit(Event{Name: EventChange, Field: c.field.path, Value: c.value, Old: c.old, State: c.field.State(), Available: c.field.Available()})
	}
	revealed := f.refreshAvailability()
	if mode == revalidateNone || len(changes) == 0 {
		return
	}

	var queue []*Field
	queued := make(map[*Field]struct{})
	enqueue := func(fl *Field) {
		if _, ok := queued[fl]; ok {
			return
		}
		queued[fl] = struct{}{}
		queue = append(queue, fl)
	}

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.field.path)
		if mode == revalidateChanged || c.field.Validated() {
			enqueue(c.field)
		}
		for p := c.field.parent; p != nil; p = p.parent {
			if p.set != nil && p.Validated() {
				enqueue(p)
			}
		}
	}
	for _, dep := range f.deps.dependentsOf(paths) {
		if dep.Validated() {
			enqueue(dep)
		}
	}
	for _, fl := range revealed {
		enqueue(fl)
	}

	for _, fl := range queue {
		fl.schedule()
	}
}

// refreshAvailability re-evaluates every condition against the current data,
// parents before children, and returns validated fields that became visible.
func (f *Form) refreshAvailability() []*Field {
	if !f.conditional {
		return nil
	}
	ctx := visibility.Context{Values: f.Data(), Extras: f.extras}

	var revealed []*Field
	for _, fl := range f.order {
		visible := true
		switch {
		case fl.parent != nil && !fl.parent.Available():
			visible = false
		case strings.TrimSpace(fl.def.Conditions) != "":
			ok, err := f.evaluator.Eval(fl.path, fl.def.Conditions, ctx)
			if err != nil {
				f.logger.Warn("condition evaluation failed", "field", fl.path, "error", err)
				ok = true
			}
			visible = ok
		}

		changed, validated := fl.setAvailable(visible)
		if !changed {
			continue
		}
		f.emit(Event{Name: EventAvailability, Field: fl.path, Value: fl.Value(), State: fl.State(), Available: visible})
		if visible && validated {
			revealed = append(revealed, fl)
		}
	}
	return revealed
}

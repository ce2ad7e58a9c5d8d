package form

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/validation"
)

// Field is the live state of one form field. Leaf fields hold a value; nested
// fields (groups) take their value from their children. All methods are safe
// for concurrent use.
type Field struct {
	form     *Form
	def      model.Field
	path     string
	parent   *Field
	children []*Field
	nested   bool
	set      *validation.Set
	debounce time.Duration

	mu           sync.Mutex
	value        any
	defaultValue any
	dirty        bool
	validated    bool
	available    bool
	state        State
	settled      State
	bag          *validation.MessageBag
	gen          uint64
	timer        Timer
	cancel       context.CancelFunc
}

// Path returns the dotted path of the field.
func (fl *Field) Path() string { return fl.path }

// Name returns the last path segment.
func (fl *Field) Name() string { return fl.def.Name }

// Definition returns the declaration the field was built from.
func (fl *Field) Definition() model.Field { return fl.def }

// Children returns the direct children of a nested field.
func (fl *Field) Children() []*Field {
	return append([]*Field(nil), fl.children...)
}

// Nested reports whether the field is a group.
func (fl *Field) Nested() bool { return fl.nested }

// Rules returns the bound validator set, or nil when the field has no rules.
func (fl *Field) Rules() *validation.Set { return fl.set }

// Debounce returns the effective delay between a change and its validation.
func (fl *Field) Debounce() time.Duration { return fl.debounce }

// Value returns the current value. Groups return a map of their children.
func (fl *Field) Value() any {
	if fl.nested {
		out := make(map[string]any, len(fl.children))
		for _, child := range fl.children {
			out[child.def.Name] = child.Value()
		}
		return out
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.value
}

// SetValue stores a new value, marks the field dirty and schedules the
// validation of the field and of every field that depends on it.
func (fl *Field) SetValue(value any) error {
	if fl.nested {
		return fmt.Errorf("%w: %s", ErrNestedValue, fl.path)
	}
	old := fl.store(value, true)
	fl.form.propagate([]change{{field: fl, old: old, value: value}}, revalidateChanged)
	return nil
}

// store swaps the value and returns the previous one. Any pending or
// in-flight cycle belongs to the old value and is superseded; the state falls
// back to the last settled outcome until a new cycle runs.
func (fl *Field) store(value any, dirty bool) any {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	old := fl.value
	fl.value = value
	if dirty {
		fl.dirty = true
	}
	fl.gen++
	fl.supersedeLocked()
	if fl.state == Validating {
		fl.state = fl.settled
	}
	return old
}

// Touch marks the field dirty without changing its value.
func (fl *Field) Touch() {
	fl.mu.Lock()
	fl.dirty = true
	fl.mu.Unlock()
}

// Dirty reports whether the value was changed or the field touched. A group is
// dirty when any child is.
func (fl *Field) Dirty() bool {
	fl.mu.Lock()
	dirty := fl.dirty
	fl.mu.Unlock()
	if dirty {
		return true
	}
	for _, child := range fl.children {
		if child.Dirty() {
			return true
		}
	}
	return false
}

// Available reports whether the field's condition (and every ancestor's)
// currently holds.
func (fl *Field) Available() bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.available
}

// Validated reports whether a validation cycle completed since the last reset.
func (fl *Field) Validated() bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.validated
}

// State returns the validation state. Unavailable fields and fields without
// rules report Valid. Groups combine their own state with their children's.
func (fl *Field) State() State {
	fl.mu.Lock()
	own := fl.state
	available := fl.available
	fl.mu.Unlock()
	if !available {
		return Valid
	}
	if fl.set == nil {
		own = Valid
	}
	if len(fl.children) == 0 {
		return own
	}

	states := []State{own}
	for _, child := range fl.children {
		states = append(states, child.State())
	}
	return combineStates(states)
}

func combineStates(states []State) State {
	var idle, invalid bool
	for _, s := range states {
		switch s {
		case Validating:
			return Validating
		case Invalid:
			invalid = true
		case Idle:
			idle = true
		}
	}
	switch {
	case invalid:
		return Invalid
	case idle:
		return Idle
	default:
		return Valid
	}
}

// Invalid reports whether the field (or a descendant) is available and either
// failed its rules or carries injected messages.
func (fl *Field) Invalid() bool {
	fl.mu.Lock()
	available := fl.available
	own := fl.state == Invalid || len(fl.bag.Injected()) > 0
	fl.mu.Unlock()
	if !available {
		return false
	}
	if own {
		return true
	}
	for _, child := range fl.children {
		if child.Invalid() {
			return true
		}
	}
	return false
}

// Messages returns the field's message bag.
func (fl *Field) Messages() *validation.MessageBag { return fl.bag }

// Errors returns the field's messages, injected ones first.
func (fl *Field) Errors() []string { return fl.bag.Messages() }

// Error returns the first message, or "".
func (fl *Field) Error() string { return fl.bag.First() }

// InjectErrors adds externally produced messages (server errors). They are
// kept until ClearInjected, independently of rule messages.
func (fl *Field) InjectErrors(messages ...string) {
	fl.bag.Inject(messages...)
}

// ClearInjected removes injected messages from the field and its descendants.
func (fl *Field) ClearInjected() {
	fl.bag.ClearInjected()
	for _, child := range fl.children {
		child.ClearInjected()
	}
}

// Reset restores default values, clears messages and validation state, and
// re-validates dependents that were already validated.
func (fl *Field) Reset() {
	changes := fl.resetTree(nil)
	fl.form.propagate(changes, revalidateKnown)
	fl.form.emit(Event{Name: EventReset, Field: fl.path, Value: fl.Value(), State: fl.State()})
}

func (fl *Field) resetTree(changes []change) []change {
	fl.mu.Lock()
	fl.gen++
	fl.supersedeLocked()
	fl.dirty = false
	fl.validated = false
	fl.state = Idle
	fl.settled = Idle
	fl.bag.Clear()
	var c *change
	if !fl.nested {
		old := fl.value
		fl.value = fl.defaultValue
		c = &change{field: fl, old: old, value: fl.value}
	}
	fl.mu.Unlock()

	if c != nil {
		changes = append(changes, *c)
	}
	for _, child := range fl.children {
		changes = child.resetTree(changes)
	}
	return changes
}

// Clear empties the value (every leaf of a group) and re-validates the
// fields that were already validated.
func (fl *Field) Clear() {
	changes := fl.clearTree(nil)
	fl.form.propagate(changes, revalidateKnown)
	fl.form.emit(Event{Name: EventClear, Field: fl.path, State: fl.State()})
}

func (fl *Field) clearTree(changes []change) []change {
	if !fl.nested {
		old := fl.store(nil, true)
		return append(changes, change{field: fl, old: old})
	}
	for _, child := range fl.children {
		changes = child.clearTree(changes)
	}
	return changes
}

// Validate runs the rules now, superseding any pending or in-flight cycle,
// and waits for the outcome. ErrSuperseded is returned when a newer trigger
// replaced this cycle before it finished.
func (fl *Field) Validate(ctx context.Context) (validation.Result, error) {
	if fl.set == nil {
		fl.mu.Lock()
		if fl.available {
			fl.validated = true
			fl.state = Valid
		} else {
			fl.state = Idle
		}
		fl.mu.Unlock()
		return validation.Result{}, nil
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fl.mu.Lock()
	fl.gen++
	gen := fl.gen
	fl.supersedeLocked()
	fl.cancel = cancel
	fl.mu.Unlock()

	fl.form.acquire()
	defer fl.form.release()

	result, err := fl.cycle(cycleCtx, gen)
	if err != nil {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

// schedule starts a new generation: the previous timer is stopped, the
// in-flight cycle is cancelled, and a new cycle runs after the debounce delay.
func (fl *Field) schedule() {
	if fl.set == nil {
		return
	}
	fl.mu.Lock()
	fl.gen++
	gen := fl.gen
	fl.supersedeLocked()
	if fl.debounce > 0 {
		fl.form.acquire()
		fl.timer = fl.form.clock.AfterFunc(fl.debounce, func() { fl.fire(gen) })
		fl.mu.Unlock()
		return
	}
	fl.mu.Unlock()

	fl.form.acquire()
	fl.start(gen)
}

// supersedeLocked stops the pending timer and cancels the in-flight cycle.
// The caller holds fl.mu.
func (fl *Field) supersedeLocked() {
	if fl.timer != nil {
		if fl.timer.Stop() {
			fl.form.release()
		}
		fl.timer = nil
	}
	if fl.cancel != nil {
		fl.cancel()
		fl.cancel = nil
	}
}

func (fl *Field) fire(gen uint64) {
	fl.mu.Lock()
	if fl.gen != gen {
		// Stop lost the race with the timer; the slot is released here.
		fl.mu.Unlock()
		fl.form.release()
		return
	}
	fl.timer = nil
	fl.mu.Unlock()
	fl.start(gen)
}

// start runs the cycle for gen, inline for synchronous sets and on its own
// goroutine when an async rule is involved. It releases the in-flight slot
// acquired by the caller.
func (fl *Field) start(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	fl.mu.Lock()
	if fl.gen != gen {
		fl.mu.Unlock()
		cancel()
		fl.form.release()
		return
	}
	fl.cancel = cancel
	fl.mu.Unlock()

	run := func() {
		defer fl.form.release()
		defer cancel()
		_, _ = fl.cycle(ctx, gen)
	}
	if fl.set.HasAsync() {
		go run()
		return
	}
	run()
}

func (fl *Field) cycle(ctx context.Context, gen uint64) (validation.Result, error) {
	value := fl.Value()

	fl.mu.Lock()
	if fl.gen != gen {
		fl.mu.Unlock()
		return validation.Result{}, ErrSuperseded
	}
	if !fl.available {
		fl.state = Idle
		fl.settled = Idle
		fl.bag.ClearRules()
		fl.mu.Unlock()
		return validation.Result{}, nil
	}
	if fl.state != Validating {
		fl.settled = fl.state
	}
	fl.state = Validating
	fl.mu.Unlock()

	fl.form.emit(Event{Name: EventValidating, Field: fl.path, Value: value, State: Validating, Available: true})
	result := fl.set.Evaluate(ctx, value, env{field: fl})
	if err := fl.finish(gen, value, result); err != nil {
		return result, err
	}
	return result, nil
}

func (fl *Field) finish(gen uint64, value any, result validation.Result) error {
	fl.mu.Lock()
	if fl.gen != gen {
		fl.mu.Unlock()
		fl.form.logger.Debug("discarding superseded validation result",
			"field", fl.path, "generation", gen)
		return ErrSuperseded
	}
	fl.validated = true
	if result.Valid() {
		fl.state = Valid
		fl.bag.ClearRules()
	} else {
		fl.state = Invalid
		fl.bag.ReplaceRules(result.Entries())
	}
	fl.settled = fl.state
	state := fl.state
	fl.mu.Unlock()

	for _, o := range result.Failures() {
		if o.Err != nil {
			fl.form.logger.Warn("rule check failed",
				"field", fl.path, "rule", o.Rule, "error", o.Err)
		}
	}
	fl.form.emit(Event{
		Name:      EventValidated,
		Field:     fl.path,
		Value:     value,
		State:     state,
		Available: true,
		Messages:  fl.bag.Messages(),
	})
	return nil
}

// setAvailable updates availability and reports whether it changed. Hiding a
// field supersedes its cycles and drops its rule messages.
func (fl *Field) setAvailable(available bool) (changed, validated bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.available == available {
		return false, fl.validated
	}
	fl.available = available
	if !available {
		fl.gen++
		fl.supersedeLocked()
		fl.state = Idle
		fl.settled = Idle
		fl.bag.ClearRules()
	}
	return true, fl.validated
}

// env exposes the form to rules evaluated for one field.
type env struct {
	field *Field
}

func (e env) Field() string { return e.field.path }

func (e env) Lookup(path string) (any, bool) {
	target, ok := e.field.form.resolve(e.field, path)
	if !ok {
		return nil, false
	}
	return target.Value(), true
}

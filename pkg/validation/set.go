package validation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formrules/pkg/rulespec"
)

// Mode selects how a Set reacts to the first failing rule.
type Mode int

const (
	// StopOnFirst stops evaluation at the first failing rule.
	StopOnFirst Mode = iota
	// CollectAll runs every rule and reports every failure.
	CollectAll
)

func (m Mode) String() string {
	switch m {
	case CollectAll:
		return "collect_all"
	default:
		return "stop_on_first"
	}
}

// ParseMode accepts "stop_on_first"/"bail" and "collect_all"/"all".
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stop_on_first", "stop-on-first", "bail", "first":
		return StopOnFirst, nil
	case "collect_all", "collect-all", "all":
		return CollectAll, nil
	default:
		return StopOnFirst, fmt.Errorf("validation: unknown mode %q", raw)
	}
}

// Status is the state of a single rule check.
type Status int

const (
	Passed Status = iota
	Failed
	Pending
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "failed"
	case Pending:
		return "pending"
	default:
		return "passed"
	}
}

// Outcome is the result of one rule. Err is set when the check could not run.
type Outcome struct {
	Rule    string
	Status  Status
	Message string
	Err     error
}

// Result aggregates the outcomes of one evaluation in declaration order.
type Result struct {
	Outcomes []Outcome
}

// Valid reports whether no rule failed or is pending.
func (r Result) Valid() bool {
	for _, o := range r.Outcomes {
		if o.Status != Passed {
			return false
		}
	}
	return true
}

// Failures returns the failed outcomes in declaration order.
func (r Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == Failed {
			out = append(out, o)
		}
	}
	return out
}

// Entries converts failures into message bag entries.
func (r Result) Entries() []Entry {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(failures))
	for _, o := range failures {
		out = append(out, Entry{Rule: o.Rule, Message: o.Message})
	}
	return out
}

// SetOptions configure NewSet.
type SetOptions struct {
	Registry *Registry
	Messages *Messages
	Mode     Mode
	// Attribute is the display name used in messages; defaults to Humanize(field).
	Attribute string
}

type boundRule struct {
	def  Definition
	spec rulespec.Rule
}

// Set is the ordered list of rules bound to one field. A Set is immutable after
// construction and safe for concurrent evaluation.
type Set struct {
	field     string
	attribute string
	mode      Mode
	messages  *Messages
	rules     []boundRule
	nullable  bool
	numeric   bool
}

// NewSet binds rules to a field. Unknown rule names fail fast.
func NewSet(field string, rules []rulespec.Rule, opts SetOptions) (*Set, error) {
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	messages := opts.Messages
	if messages == nil {
		messages = NewMessages()
	}
	attribute := strings.TrimSpace(opts.Attribute)
	if attribute == "" {
		attribute = Humanize(field)
	}

	set := &Set{
		field:     field,
		attribute: attribute,
		mode:      opts.Mode,
		messages:  messages,
	}
	for _, spec := range rules {
		def, ok := registry.Lookup(spec.Name)
		if !ok {
			return nil, fmt.Errorf("%w %q on field %q", ErrUnknownRule, spec.Name, field)
		}
		switch spec.Name {
		case RuleNullable:
			set.nullable = true
		case RuleNumeric, RuleInteger:
			set.numeric = true
		}
		if def.Marker {
			continue
		}
		set.rules = append(set.rules, boundRule{def: def, spec: spec})
	}
	return set, nil
}

// Field returns the path the set is bound to.
func (s *Set) Field() string { return s.field }

// Mode returns the evaluation mode.
func (s *Set) Mode() Mode { return s.mode }

// Len returns the number of executable rules.
func (s *Set) Len() int { return len(s.rules) }

// Rules returns the executable rule specs in order.
func (s *Set) Rules() []rulespec.Rule {
	out := make([]rulespec.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.spec)
	}
	return out
}

// HasAsync reports whether any rule is asynchronous.
func (s *Set) HasAsync() bool {
	for _, r := range s.rules {
		if r.def.Async {
			return true
		}
	}
	return false
}

// Debounce returns the largest debounce=<ms> parameter declared on any rule.
func (s *Set) Debounce() (time.Duration, bool) {
	var (
		max   time.Duration
		found bool
	)
	for _, r := range s.rules {
		raw, ok := r.spec.Named("debounce")
		if !ok {
			continue
		}
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			continue
		}
		found = true
		if d := time.Duration(ms) * time.Millisecond; d > max {
			max = d
		}
	}
	return max, found
}

// References returns the candidate paths this set may read. exists filters
// the candidates down to real fields.
func (s *Set) References(exists func(path string) bool) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, r := range s.rules {
		if r.def.Refs == nil {
			continue
		}
		for _, candidate := range r.def.Refs(s.field, r.spec.Positional()) {
			if candidate == "" || candidate == s.field {
				continue
			}
			if _, dup := seen[candidate]; dup {
				continue
			}
			if exists != nil && !exists(candidate) {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	return out
}

// Pending reports every async rule as Pending; controllers publish it while a
// cycle is in flight.
func (s *Set) Pending() []Outcome {
	var out []Outcome
	for _, r := range s.rules {
		if r.def.Async {
			out = append(out, Outcome{Rule: r.spec.Name, Status: Pending})
		}
	}
	return out
}

// Evaluate runs the rules against value in declaration order. In CollectAll
// mode async rules run concurrently and their outcomes are reassembled in
// declaration order.
func (s *Set) Evaluate(ctx context.Context, value any, env Env) Result {
	if s == nil || len(s.rules) == 0 {
		return Result{}
	}
	skipOptional := s.nullable && IsEmpty(value)

	if s.mode == StopOnFirst {
		outcomes := make([]Outcome, 0, len(s.rules))
		for _, r := range s.rules {
			if skipOptional && !r.def.Implicit {
				continue
			}
			o := s.run(ctx, r, value, env)
			outcomes = append(outcomes, o)
			if o.Status == Failed {
				break
			}
		}
		return Result{Outcomes: outcomes}
	}

	outcomes := make([]Outcome, len(s.rules))
	ran := make([]bool, len(s.rules))
	group, groupCtx := errgroup.WithContext(ctx)
	for idx, r := range s.rules {
		if skipOptional && !r.def.Implicit {
			continue
		}
		ran[idx] = true
		if !r.def.Async {
			outcomes[idx] = s.run(ctx, r, value, env)
			continue
		}
		group.Go(func() error {
			outcomes[idx] = s.run(groupCtx, r, value, env)
			return nil
		})
	}
	_ = group.Wait()

	out := make([]Outcome, 0, len(s.rules))
	for idx := range s.rules {
		if ran[idx] {
			out = append(out, outcomes[idx])
		}
	}
	return Result{Outcomes: out}
}

func (s *Set) run(ctx context.Context, r boundRule, value any, env Env) Outcome {
	args := Args{
		Rule:    r.spec,
		Params:  r.spec.Positional(),
		Env:     env,
		Numeric: s.numeric,
	}
	ok, err := r.def.Check(ctx, value, args)
	if err != nil {
		return Outcome{
			Rule:    r.spec.Name,
			Status:  Failed,
			Message: s.messages.Render(checkFailedKey, "", s.messageData(r, value, args)),
			Err:     err,
		}
	}
	if ok {
		return Outcome{Rule: r.spec.Name, Status: Passed}
	}
	_, kind, _ := Size(value, s.numeric)
	return Outcome{
		Rule:    r.spec.Name,
		Status:  Failed,
		Message: s.messages.Render(r.spec.Name, string(kind), s.messageData(r, value, args)),
	}
}

func (s *Set) messageData(r boundRule, value any, args Args) map[string]any {
	data := map[string]any{
		"attribute": s.attribute,
		"field":     s.field,
		"value":     value,
		"params":    args.Params,
	}
	for idx, name := range r.def.ParamNames {
		if name == "values" {
			data[name] = strings.Join(args.Params, ", ")
			continue
		}
		raw, ok := args.Param(idx)
		if !ok {
			continue
		}
		if args.IsReference(idx) {
			data[name] = Humanize(raw)
			continue
		}
		data[name] = raw
	}
	return data
}

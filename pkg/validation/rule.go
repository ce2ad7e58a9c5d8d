package validation

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-formrules/pkg/rulespec"
)

var (
	// ErrUnknownRule is returned when a spec names a rule missing from the registry.
	ErrUnknownRule = errors.New("validation: unknown rule")
	// ErrInvalidDefinition is returned when registering a rule without name or check.
	ErrInvalidDefinition = errors.New("validation: rule requires a name and a check function")
	// ErrMissingParam is returned by checks whose required parameters are absent.
	ErrMissingParam = errors.New("validation: missing rule parameter")
)

// Env exposes the surroundings of the field under validation: its own path and
// the current values of its siblings. Implementations resolve dotted paths.
type Env interface {
	Field() string
	Lookup(path string) (any, bool)
}

// Args is passed to a CheckFunc. Params holds the positional parameters; a
// parameter naming another field can be resolved with Resolve.
type Args struct {
	Rule   rulespec.Rule
	Params []string
	Env    Env
	// Numeric is set when the owning set declares numeric or integer, so
	// size rules compare string values by their numeric value.
	Numeric bool
}

// Param returns the positional parameter at idx.
func (a Args) Param(idx int) (string, bool) {
	if idx < 0 || idx >= len(a.Params) {
		return "", false
	}
	return a.Params[idx], true
}

// Resolve returns the value of the field named by the parameter at idx, or the
// literal parameter when no such field exists.
func (a Args) Resolve(idx int) (any, bool) {
	raw, ok := a.Param(idx)
	if !ok {
		return nil, false
	}
	if a.Env != nil && raw != a.Env.Field() {
		if v, found := a.Env.Lookup(raw); found {
			return v, true
		}
	}
	return raw, true
}

// IsReference reports whether the parameter at idx names another field.
func (a Args) IsReference(idx int) bool {
	raw, ok := a.Param(idx)
	if !ok || a.Env == nil || raw == a.Env.Field() {
		return false
	}
	_, found := a.Env.Lookup(raw)
	return found
}

// CheckFunc is the predicate of a rule. Returning an error signals that the
// check itself could not run (for example a transport failure), which is
// reported differently from a failed predicate.
type CheckFunc func(ctx context.Context, value any, args Args) (bool, error)

// RefsFunc lists the paths a rule may read besides its own field. Candidates
// that do not name an existing field are ignored by the dependency tracker.
type RefsFunc func(field string, params []string) []string

// Definition describes a named rule.
type Definition struct {
	Name string
	// Async rules run off the caller's goroutine and may be superseded.
	Async bool
	// Implicit rules run even when the value is empty (required, accepted).
	Implicit bool
	// Marker rules only configure the set (nullable) and never execute.
	Marker bool
	// ParamNames labels positional parameters in message templates.
	ParamNames []string
	// Refs lists paths that may name sibling fields; nil means none.
	Refs  RefsFunc
	Check CheckFunc
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidDefinition
	}
	if d.Check == nil && !d.Marker {
		return ErrInvalidDefinition
	}
	return nil
}

// AllParams is a RefsFunc treating every positional parameter as a candidate.
func AllParams(_ string, params []string) []string {
	return params
}

// TailParams treats every positional parameter except the first as a candidate.
func TailParams(_ string, params []string) []string {
	if len(params) < 2 {
		return nil
	}
	return params[1:]
}

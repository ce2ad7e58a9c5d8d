// Package visibility decides whether a form field is available. Unavailable
// fields are skipped by validation and reported as valid.
package visibility

// Evaluator resolves a field's condition against the current form values.
type Evaluator interface {
	Eval(fieldPath, condition string, ctx Context) (bool, error)
}

// Context carries the inputs of an evaluation. Values holds the form data as a
// nested map; Extras holds host supplied facts (roles, feature flags) reachable
// through the `extras.` prefix.
type Context struct {
	Values map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(fieldPath, condition string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(fieldPath, condition string, ctx Context) (bool, error) {
	return fn(fieldPath, condition, ctx)
}

// DependencyLister is implemented by evaluators that can list the value paths
// a condition reads. Forms use it to recompute availability when one of those
// fields changes.
type DependencyLister interface {
	Dependencies(condition string) ([]string, error)
}

// Dependencies returns the paths read by condition, or nil when the evaluator
// cannot tell.
func Dependencies(ev Evaluator, condition string) ([]string, error) {
	lister, ok := ev.(DependencyLister)
	if !ok {
		return nil, nil
	}
	return lister.Dependencies(condition)
}

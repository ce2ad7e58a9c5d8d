// Package remote implements rules whose verdict comes from outside the
// process: a host-provided callback or an HTTP endpoint. The exists rule asks
// an endpoint whether a value is already taken.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-formrules/pkg/validation"
)

var (
	// ErrCheckFailed wraps transport and decoding failures of a remote check.
	ErrCheckFailed = errors.New("remote: check failed")
	// ErrUnexpectedResponse is returned when a response cannot be interpreted.
	ErrUnexpectedResponse = errors.New("remote: unexpected response")
)

// ConfigError reports a misconfigured endpoint. It is returned while building a
// form so that broken configuration fails fast instead of surfacing per field.
type ConfigError struct {
	Rule   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("remote: %s endpoint: %s", e.Rule, e.Reason)
}

// Request describes one remote check.
type Request struct {
	// Name is the field name (last path segment); Path is the full dotted path.
	Name  string
	Path  string
	Value any
	// Params is the parameter bag keyed "0", "1", ... in declaration order.
	Params map[string]any
	// Env gives callbacks access to the rest of the form.
	Env validation.Env
}

// Func is a host-provided check. The result is interpreted like an HTTP
// response body: a bool or an object carrying an "exists" bool.
type Func func(ctx context.Context, req Request) (any, error)

// Checker performs a remote check and returns the raw verdict.
type Checker interface {
	Check(ctx context.Context, req Request) (any, error)
}

// Check lets a Func satisfy Checker.
func (fn Func) Check(ctx context.Context, req Request) (any, error) {
	return fn(ctx, req)
}

// Endpoint configures a remote rule: either Func, or URL plus Method.
type Endpoint struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Func   Func   `json:"-" yaml:"-"`
}

// IsZero reports whether nothing is configured.
func (e Endpoint) IsZero() bool {
	return e.Func == nil && strings.TrimSpace(e.URL) == "" && strings.TrimSpace(e.Method) == ""
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// Validate checks the endpoint for the named rule.
func (e Endpoint) Validate(rule string) error {
	if e.Func != nil {
		return nil
	}
	if strings.TrimSpace(e.URL) == "" {
		return &ConfigError{Rule: rule, Reason: "url is required"}
	}
	method := strings.ToUpper(strings.TrimSpace(e.Method))
	if method == "" {
		return &ConfigError{Rule: rule, Reason: "method is required"}
	}
	if _, ok := allowedMethods[method]; !ok {
		return &ConfigError{Rule: rule, Reason: fmt.Sprintf("unsupported method %q", e.Method)}
	}
	return nil
}

// Checker builds the Checker for the endpoint, validating it first.
func (e Endpoint) Checker(rule string, client *http.Client) (Checker, error) {
	if err := e.Validate(rule); err != nil {
		return nil, err
	}
	if e.Func != nil {
		return e.Func, nil
	}
	return NewHTTPChecker(e.URL, e.Method, client), nil
}

// Endpoints holds the endpoints of every remote rule keyed by rule name.
type Endpoints map[string]Endpoint

// Validate checks every configured endpoint.
func (e Endpoints) Validate() error {
	for rule, ep := range e {
		if err := ep.Validate(rule); err != nil {
			return err
		}
	}
	return nil
}

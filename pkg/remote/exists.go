package remote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-formrules/pkg/validation"
)

// RuleExists is the name of the remote existence rule.
const RuleExists = "exists"

// ExistsDefinition returns the exists rule backed by checker. The rule fails
// when the remote side reports the value as existing (already taken).
func ExistsDefinition(checker Checker) validation.Definition {
	return validation.Definition{
		Name:       RuleExists,
		Async:      true,
		ParamNames: []string{"table"},
		Refs:       validation.TailParams,
		Check: func(ctx context.Context, value any, args validation.Args) (bool, error) {
			req := Request{
				Name:   leafName(fieldOf(args.Env)),
				Path:   fieldOf(args.Env),
				Value:  value,
				Params: ParamBag(args),
				Env:    args.Env,
			}
			raw, err := checker.Check(ctx, req)
			if err != nil {
				return false, err
			}
			exists, err := Interpret(raw)
			if err != nil {
				return false, err
			}
			return !exists, nil
		},
	}
}

// Register installs the remote rules configured in endpoints into registry.
// Misconfigured endpoints return a *ConfigError.
func Register(registry *validation.Registry, endpoints Endpoints, client *http.Client) error {
	for rule, ep := range endpoints {
		if ep.IsZero() {
			continue
		}
		checker, err := ep.Checker(rule, client)
		if err != nil {
			return err
		}
		switch rule {
		case RuleExists:
			if err := registry.Register(ExistsDefinition(checker)); err != nil {
				return err
			}
		default:
			return &ConfigError{Rule: rule, Reason: "no remote rule with this name"}
		}
	}
	return nil
}

// Configured returns a *ConfigError when rule is a remote rule that has no
// implementation in registry, which happens when a field uses it but no
// endpoint was configured. Other rule names are left to the registry.
func Configured(registry *validation.Registry, rule string) error {
	if rule != RuleExists {
		return nil
	}
	if _, ok := registry.Lookup(rule); ok {
		return nil
	}
	return &ConfigError{Rule: rule, Reason: "rule used but no endpoint configured"}
}

// ParamBag formats the rule parameters for the remote side. The first
// parameter is sent as written; later parameters that name a field are
// replaced with that field's current value. debounce is a local setting and
// never sent.
func ParamBag(args validation.Args) map[string]any {
	bag := make(map[string]any, len(args.Params))
	for idx, raw := range args.Params {
		if raw == "debounce" {
			continue
		}
		var value any = raw
		if idx > 0 && args.IsReference(idx) {
			value, _ = args.Resolve(idx)
		}
		bag[strconv.Itoa(len(bag))] = value
	}
	return bag
}

// Interpret reads a verdict: a bool, or an object with an "exists" field.
func Interpret(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case map[string]any:
		flag, ok := v["exists"]
		if !ok {
			return false, fmt.Errorf("%w: missing exists field", ErrUnexpectedResponse)
		}
		return Interpret(flag)
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrUnexpectedResponse, v)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnexpectedResponse, raw)
	}
}

func fieldOf(env validation.Env) string {
	if env == nil {
		return ""
	}
	return env.Field()
}

func leafName(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// Package rulespec normalises declarative rule specifications into an ordered
// list of rules. Specifications arrive as pipe-delimited strings
// ("required|min:3"), arrays of rule strings, or objects mapping a rule name to
// its parameters. Whatever the input form, Parse returns the same []Rule so the
// validation engine never sees the polymorphic input.
package rulespec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupportedSpec is returned when the input is not a string, list or map.
var ErrUnsupportedSpec = errors.New("rulespec: unsupported rule specification")

// Rule is the normalised representation of one declared rule.
type Rule struct {
	Name   string   `json:"name" yaml:"name"`
	Params []string `json:"params,omitempty" yaml:"params,omitempty"`
}

// String renders the rule back into its string form (name:p1,p2).
func (r Rule) String() string {
	if len(r.Params) == 0 {
		return r.Name
	}
	return r.Name + ":" + strings.Join(r.Params, ",")
}

// Positional returns the parameters that are not key=value pairs.
func (r Rule) Positional() []string {
	out := make([]string, 0, len(r.Params))
	for _, p := range r.Params {
		if _, _, ok := splitNamed(p); ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Named returns the value of a key=value parameter.
func (r Rule) Named(key string) (string, bool) {
	for _, p := range r.Params {
		if k, v, ok := splitNamed(p); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func splitNamed(param string) (string, string, bool) {
	idx := strings.Index(param, "=")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(param[:idx])
	for _, r := range key {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(param[idx+1:]), true
}

// Names lists the rule names in declaration order.
func Names(rules []Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Name)
	}
	return out
}

// Has reports whether a rule with the given name is present.
func Has(rules []Rule, name string) bool {
	for _, r := range rules {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Parse normalises any supported specification form.
func Parse(spec any) ([]Rule, error) {
	switch typed := spec.(type) {
	case nil:
		return nil, nil
	case Spec:
		return typed.Rules(), nil
	case *Spec:
		if typed == nil {
			return nil, nil
		}
		return typed.Rules(), nil
	case []Rule:
		return dedupe(typed), nil
	case string:
		return ParseString(typed)
	case []string:
		out := make([]Rule, 0, len(typed))
		for _, item := range typed {
			rule, ok, err := parseRule(item)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, rule)
			}
		}
		return dedupe(out), nil
	case []any:
		return parseList(typed)
	case map[string]any:
		return parseMap(typed)
	case map[string]string:
		converted := make(map[string]any, len(typed))
		for k, v := range typed {
			converted[k] = v
		}
		return parseMap(converted)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSpec, spec)
	}
}

// MustParse is Parse for static specifications; it panics on error.
func MustParse(spec any) []Rule {
	rules, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return rules
}

// ParseString parses the string form. Rules are separated by "|"; a string
// without "|" and ":" that contains commas is read as a comma-delimited list.
func ParseString(raw string) ([]Rule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var parts []string
	switch {
	case strings.Contains(trimmed, "|"):
		parts = strings.Split(trimmed, "|")
	case !strings.Contains(trimmed, ":") && strings.Contains(trimmed, ","):
		parts = strings.Split(trimmed, ",")
	default:
		parts = []string{trimmed}
	}

	out := make([]Rule, 0, len(parts))
	for _, part := range parts {
		rule, ok, err := parseRule(part)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rule)
		}
	}
	return dedupe(out), nil
}

func parseRule(raw string) (Rule, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Rule{}, false, nil
	}
	name, params, hasParams := strings.Cut(trimmed, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Rule{}, false, fmt.Errorf("rulespec: rule %q has no name", raw)
	}
	rule := Rule{Name: name}
	if hasParams {
		// regex patterns may legitimately contain commas
		if name == "regex" || name == "not_regex" {
			rule.Params = []string{strings.TrimSpace(params)}
			return rule, true, nil
		}
		for _, p := range strings.Split(params, ",") {
			rule.Params = append(rule.Params, strings.TrimSpace(p))
		}
	}
	return rule, true, nil
}

func parseList(items []any) ([]Rule, error) {
	out := make([]Rule, 0, len(items))
	for idx, item := range items {
		switch typed := item.(type) {
		case string:
			rule, ok, err := parseRule(typed)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, rule)
			}
		case map[string]any:
			nested, err := parseMap(typed)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		default:
			return nil, fmt.Errorf("%w: list entry %d has type %T", ErrUnsupportedSpec, idx, item)
		}
	}
	return dedupe(out), nil
}

// leading rules are hoisted when map order has to be synthesised
var leading = map[string]int{"nullable": 0, "required": 1}

func parseMap(values map[string]any) ([]Rule, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		li, iok := leading[names[i]]
		lj, jok := leading[names[j]]
		switch {
		case iok && jok:
			return li < lj
		case iok:
			return true
		case jok:
			return false
		default:
			return names[i] < names[j]
		}
	})

	out := make([]Rule, 0, len(names))
	for _, name := range names {
		rule, ok, err := ruleFromEntry(name, values[name])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

func ruleFromEntry(name string, value any) (Rule, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Rule{}, false, errors.New("rulespec: empty rule name in object specification")
	}
	rule := Rule{Name: name}
	switch typed := value.(type) {
	case nil:
	case bool:
		if !typed {
			return Rule{}, false, nil
		}
	case []any:
		for _, p := range typed {
			rule.Params = append(rule.Params, scalarString(p))
		}
	case []string:
		rule.Params = append(rule.Params, typed...)
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rule.Params = append(rule.Params, k+"="+scalarString(typed[k]))
		}
	default:
		rule.Params = []string{scalarString(typed)}
	}
	return rule, true, nil
}

func scalarString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

// dedupe keeps the first position of a repeated rule but the parameters of its
// last occurrence.
func dedupe(rules []Rule) []Rule {
	if len(rules) < 2 {
		return rules
	}
	index := make(map[string]int, len(rules))
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if pos, ok := index[r.Name]; ok {
			out[pos] = r
			continue
		}
		index[r.Name] = len(out)
		out = append(out, r)
	}
	return out
}

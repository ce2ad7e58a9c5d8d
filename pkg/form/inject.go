package form

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupportedPayload is returned by InjectErrors for payload shapes it
// cannot read.
var ErrUnsupportedPayload = errors.New("form: unsupported error payload")

// errorMapping splits server messages into field-level and form-level ones.
type errorMapping struct {
	Fields map[string][]string
	Form   []string
}

// normalizePayload flattens the accepted payload shapes into path -> messages:
// map[string][]string, map[string]string and map[string]any whose values are
// strings, string lists or nested maps (flattened into dotted paths). A single
// top-level "errors" object is unwrapped.
func normalizePayload(payload any) (map[string][]string, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case map[string][]string:
		return p, nil
	case map[string]string:
		out := make(map[string][]string, len(p))
		for k, v := range p {
			out[k] = []string{v}
		}
		return out, nil
	case map[string]any:
		if inner, ok := p["errors"]; ok && len(p) == 1 {
			if nested, ok := inner.(map[string]any); ok {
				p = nested
			}
		}
		out := make(map[string][]string)
		if err := flattenPayload("", p, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, payload)
	}
}

func flattenPayload(prefix string, values map[string]any, out map[string][]string) error {
	for key, raw := range values {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := raw.(type) {
		case string:
			out[path] = append(out[path], v)
		case []string:
			out[path] = append(out[path], v...)
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("%w: %q holds %T", ErrUnsupportedPayload, path, item)
				}
				out[path] = append(out[path], s)
			}
		case map[string]any:
			if err := flattenPayload(path, v, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %q holds %T", ErrUnsupportedPayload, path, raw)
		}
	}
	return nil
}

// mapErrors assigns each payload key to the deepest known field path it
// addresses. Keys are tried as written, without wrapper segments (body, data,
// ...) and without numeric segments. Unknown keys become form-level messages.
func mapErrors(fields map[string]*Field, payload map[string][]string) errorMapping {
	mapping := errorMapping{Fields: make(map[string][]string)}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		msgs := mergeMessages(nil, payload[key]...)
		if len(msgs) == 0 {
			continue
		}
		path, ok := matchFieldPath(key, fields)
		if !ok {
			mapping.Form = append(mapping.Form, msgs...)
			continue
		}
		mapping.Fields[path] = mergeMessages(mapping.Fields[path], msgs...)
	}
	mapping.Form = mergeMessages(nil, mapping.Form...)
	return mapping
}

func matchFieldPath(raw string, fields map[string]*Field) (string, bool) {
	if isFormLevelKey(raw) {
		return "", false
	}
	segments := splitErrorPath(raw)
	if len(segments) == 0 {
		return "", false
	}

	best, bestDepth := "", 0
	for _, variant := range pathVariants(segments) {
		for end := len(variant); end > bestDepth; end-- {
			candidate := strings.Join(variant[:end], ".")
			if _, ok := fields[candidate]; ok {
				best, bestDepth = candidate, end
				break
			}
		}
	}
	return best, best != ""
}

// splitErrorPath accepts dotted paths, bracket indexes and JSON pointers
// ("#/owner/email", "/items/0/name", "owner[email]").
func splitErrorPath(raw string) []string {
	clean := strings.TrimSpace(raw)
	for _, prefix := range []string{"#/", "$/", "$."} {
		clean = strings.TrimPrefix(clean, prefix)
	}
	clean = strings.TrimLeft(clean, "#/.$")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)

	parts := strings.FieldsFunc(clean, func(r rune) bool { return r == '.' || r == '/' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		out = append(out, part)
	}
	return out
}

var wrapperSegments = map[string]struct{}{
	"body":       {},
	"request":    {},
	"payload":    {},
	"data":       {},
	"attributes": {},
}

func pathVariants(segments []string) [][]string {
	unwrapped := segments
	for len(unwrapped) > 0 {
		if _, ok := wrapperSegments[strings.ToLower(unwrapped[0])]; !ok {
			break
		}
		unwrapped = unwrapped[1:]
	}
	return [][]string{
		segments,
		unwrapped,
		withoutIndexes(segments),
		withoutIndexes(unwrapped),
	}
}

func withoutIndexes(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if _, err := strconv.Atoi(s); err == nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}

// mergeMessages appends extras to existing, trimming blanks and duplicates
// while keeping order.
func mergeMessages(existing []string, extras ...string) []string {
	out := make([]string, 0, len(existing)+len(extras))
	seen := make(map[string]struct{}, len(existing)+len(extras))
	for _, list := range [][]string{existing, extras} {
		for _, msg := range list {
			msg = strings.TrimSpace(msg)
			if msg == "" {
				continue
			}
			if _, dup := seen[msg]; dup {
				continue
			}
			seen[msg] = struct{}{}
			out = append(out, msg)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// lookupPath resolves a dotted path in nested data, preferring a literal
// dotted key.
func lookupPath(data map[string]any, path string) (any, bool) {
	if len(data) == 0 {
		return nil, false
	}
	if v, ok := data[path]; ok {
		return v, true
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

package model

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formrules/pkg/remote"
	"github.com/goliatone/go-formrules/pkg/rulespec"
)

// FieldType is the simplified enum for form-friendly field kinds.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
	FieldTypeObject  FieldType = "object"
	// FieldTypeGroup is an alias of object used by form documents for nested
	// groups of fields.
	FieldTypeGroup FieldType = "group"
)

// IsNested reports whether fields of this type carry children.
func (t FieldType) IsNested() bool {
	return t == FieldTypeObject || t == FieldTypeGroup
}

// Field describes one input (or nested group) of a form definition.
type Field struct {
	Name        string        `json:"name" yaml:"name"`
	Type        FieldType     `json:"type,omitempty" yaml:"type,omitempty"`
	Label       string        `json:"label,omitempty" yaml:"label,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any           `json:"default,omitempty" yaml:"default,omitempty"`
	Rules       rulespec.Spec `json:"rules,omitempty" yaml:"rules,omitempty"`
	// Conditions is a visibility expression; the field is unavailable while it
	// evaluates to false.
	Conditions string   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Debounce   Duration `json:"debounce,omitempty" yaml:"debounce,omitempty"`
	// Mode overrides the form-level validation mode for this field.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Submit set to false excludes the field from filtered data.
	Submit   *bool             `json:"submit,omitempty" yaml:"submit,omitempty"`
	Enum     []any             `json:"enum,omitempty" yaml:"enum,omitempty"`
	Nested   []Field           `json:"fields,omitempty" yaml:"fields,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Submits reports whether the field contributes to filtered data.
func (f Field) Submits() bool {
	return f.Submit == nil || *f.Submit
}

// ValidationConfig holds the form-level validation defaults.
type ValidationConfig struct {
	Mode     string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Debounce Duration `json:"debounce,omitempty" yaml:"debounce,omitempty"`
	Locale   string   `json:"locale,omitempty" yaml:"locale,omitempty"`
	// Messages overrides message templates keyed by rule (or rule.variant).
	Messages map[string]string `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// FormModel is the top-level form definition.
type FormModel struct {
	ID         string            `json:"id" yaml:"id"`
	Endpoint   string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method     string            `json:"method,omitempty" yaml:"method,omitempty"`
	Summary    string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	Validation ValidationConfig  `json:"validation,omitempty" yaml:"validation,omitempty"`
	Endpoints  remote.Endpoints  `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Fields     []Field           `json:"fields" yaml:"fields"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Walk visits every field depth-first with its dotted path.
func (m FormModel) Walk(fn func(path string, field Field) error) error {
	return walkFields("", m.Fields, fn)
}

func walkFields(prefix string, fields []Field, fn func(string, Field) error) error {
	for _, field := range fields {
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}
		if err := fn(path, field); err != nil {
			return err
		}
		if len(field.Nested) > 0 {
			if err := walkFields(path, field.Nested, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Duration decodes either a Go duration string ("300ms") or a number of
// milliseconds.
type Duration time.Duration

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts "300ms", "1s" or 300.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("model: duration must be a scalar (line %d)", node.Line)
	}
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("model: line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML renders the Go duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalJSON accepts a string duration or a millisecond number.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
		return nil
	case string:
		parsed, err := parseDuration(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("model: unsupported duration %T", raw)
	}
}

// MarshalJSON renders the Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if isDigits(raw) {
		var ms int64
		for _, r := range raw {
			ms = ms*10 + int64(r-'0')
		}
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("model: invalid duration %q", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("model: negative duration %q", raw)
	}
	return Duration(parsed), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

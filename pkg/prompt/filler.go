package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/model"
)

// ErrTooManyAttempts is returned when a field keeps being rejected.
var ErrTooManyAttempts = errors.New("prompt: too many attempts")

// Filler asks for every leaf field of a form.
type Filler struct {
	driver      Driver
	format      OutputFormat
	maxAttempts int
	out         io.Writer
}

// New constructs a Filler backed by the survey driver unless WithDriver is
// given.
func New(options ...Option) *Filler {
	f := &Filler{
		format: OutputFormatJSON,
		out:    defaultOutput(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(f)
		}
	}
	if f.driver == nil {
		f.driver = NewSurveyDriver(f.out)
	}
	return f
}

// Fill prompts for each available leaf in form order, then validates the
// whole form. The filtered data is returned serialized; ErrInvalid is
// returned together with the data when the form still fails.
func (p *Filler) Fill(ctx context.Context, f *form.Form) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("prompt: context is required")
	}
	if err := f.Mount(ctx); err != nil {
		return nil, err
	}

	for _, fl := range f.Fields() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fl.Nested() || !fl.Available() || !fl.Definition().Submits() {
			continue
		}
		if err := p.promptField(ctx, fl); err != nil {
			return nil, fmt.Errorf("prompt: %s: %w", fl.Path(), err)
		}
	}

	valid, err := f.Validate(ctx)
	if err != nil {
		return nil, err
	}
	out, err := p.serialize(f.Filtered())
	if err != nil {
		return nil, err
	}
	if !valid {
		for _, path := range sortedKeys(f.Errors()) {
			_ = p.driver.Info(ctx, fmt.Sprintf("%s: %s", path, strings.Join(f.Errors()[path], " ")))
		}
		return out, ErrInvalid
	}
	return out, nil
}

func (p *Filler) promptField(ctx context.Context, fl *form.Field) error {
	def := fl.Definition()
	for attempt := 1; ; attempt++ {
		value, err := p.ask(ctx, fl, def)
		if err != nil {
			return err
		}
		msg, err := apply(ctx, fl, value)
		if err != nil {
			return err
		}
		if msg == "" {
			return nil
		}
		_ = p.driver.Info(ctx, fmt.Sprintf("Invalid %s: %s", fl.Path(), msg))
		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			return ErrTooManyAttempts
		}
	}
}

func (p *Filler) ask(ctx context.Context, fl *form.Field, def model.Field) (any, error) {
	label := displayLabel(def)
	help := displayHelp(def)

	switch {
	case def.Type == model.FieldTypeBoolean:
		current, _ := fl.Value().(bool)
		return p.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: current, Help: help})
	case len(def.Enum) > 0:
		options := stringifyEnum(def.Enum)
		idx, err := p.driver.Select(ctx, SelectConfig{
			Message:      label,
			Options:      options,
			DefaultIndex: indexOf(options, fmt.Sprint(fl.Value())),
			Help:         help,
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(def.Enum) {
			return nil, nil
		}
		return def.Enum[idx], nil
	}

	cfg := InputConfig{
		Message: label,
		Default: defaultString(fl.Value()),
		Help:    help,
		Validator: func(raw string) error {
			if _, err := parseAnswer(def.Type, raw); err != nil {
				return err
			}
			return nil
		},
	}
	var (
		raw string
		err error
	)
	if isSecret(def) {
		raw, err = p.driver.Password(ctx, cfg)
	} else {
		raw, err = p.driver.Input(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	return parseAnswer(def.Type, raw)
}

// apply stores value and runs the field's rules, returning the first message
// when they fail.
func apply(ctx context.Context, fl *form.Field, value any) (string, error) {
	if err := fl.SetValue(value); err != nil {
		return "", err
	}
	if _, err := fl.Validate(ctx); err != nil && !errors.Is(err, form.ErrSuperseded) {
		return "", err
	}
	if fl.Invalid() {
		return fl.Error(), nil
	}
	return "", nil
}

// parseAnswer converts terminal input to the field's type. Blank input is nil.
func parseAnswer(typ model.FieldType, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	switch typ {
	case model.FieldTypeInteger:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a whole number", trimmed)
		}
		return n, nil
	case model.FieldTypeNumber:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", trimmed)
		}
		return n, nil
	case model.FieldTypeArray:
		parts := strings.Split(trimmed, ",")
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

func isSecret(def model.Field) bool {
	if strings.EqualFold(def.Metadata["cli.secret"], "true") {
		return true
	}
	return strings.Contains(strings.ToLower(def.Name), "password")
}

func displayLabel(field model.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

func displayHelp(field model.Field) string {
	if h := field.Metadata["cli.help"]; h != "" {
		return h
	}
	return field.Description
}

func stringifyEnum(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func defaultString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []any:
		return strings.Join(stringifyEnum(v), ",")
	default:
		return fmt.Sprint(v)
	}
}

func (p *Filler) serialize(values map[string]any) ([]byte, error) {
	switch p.format {
	case OutputFormatFormURLEncoded:
		flattened := url.Values{}
		flatten("", values, flattened)
		return []byte(flattened.Encode()), nil
	case OutputFormatPrettyText:
		var b strings.Builder
		writePretty(&b, "", values)
		return []byte(b.String()), nil
	default:
		return json.Marshal(values)
	}
}

func flatten(prefix string, value any, out url.Values) {
	switch v := value.(type) {
	case map[string]any:
		for key, val := range v {
			flatten(join(prefix, key), val, out)
		}
	case []any:
		for _, val := range v {
			out.Add(prefix+"[]", fmt.Sprint(val))
		}
	case nil:
		out.Set(prefix, "")
	default:
		out.Set(prefix, fmt.Sprint(v))
	}
}

func writePretty(b *strings.Builder, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			writePretty(b, join(prefix, key), v[key])
		}
	case []any:
		for idx, val := range v {
			writePretty(b, fmt.Sprintf("%s[%d]", prefix, idx), val)
		}
	case nil:
		if prefix != "" {
			fmt.Fprintf(b, "%s=\n", prefix)
		}
	default:
		if prefix != "" {
			fmt.Fprintf(b, "%s=%v\n", prefix, v)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

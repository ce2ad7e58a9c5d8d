package validation

import (
	"errors"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// ErrMissingTranslator is passed to MissingTranslationHandler when no
// Translator is configured.
var ErrMissingTranslator = errors.New("validation: translator is not configured")

// Translator resolves message templates per locale. Keys are prefixed with
// "validation." (for example "validation.min.string").
type Translator interface {
	Translate(locale, key string, args ...any) (string, error)
}

// TranslatorFunc adapts a function into a Translator.
type TranslatorFunc func(locale, key string, args ...any) (string, error)

// Translate delegates to the underlying function.
func (fn TranslatorFunc) Translate(locale, key string, args ...any) (string, error) {
	return fn(locale, key, args...)
}

const defaultMessageKey = "default"

var defaultTemplates = map[string]string{
	defaultMessageKey:   "The {{ attribute }} is invalid.",
	checkFailedKey:      "The {{ attribute }} could not be verified.",
	RuleRequired:        "The {{ attribute }} field is required.",
	RuleAccepted:        "The {{ attribute }} must be accepted.",
	"min.string":        "The {{ attribute }} must be at least {{ min }} characters.",
	"min.numeric":       "The {{ attribute }} must be at least {{ min }}.",
	"min.array":         "The {{ attribute }} must have at least {{ min }} items.",
	"max.string":        "The {{ attribute }} may not be greater than {{ max }} characters.",
	"max.numeric":       "The {{ attribute }} may not be greater than {{ max }}.",
	"max.array":         "The {{ attribute }} may not have more than {{ max }} items.",
	"size.string":       "The {{ attribute }} must be {{ size }} characters.",
	"size.numeric":      "The {{ attribute }} must be {{ size }}.",
	"size.array":        "The {{ attribute }} must contain {{ size }} items.",
	"between.string":    "The {{ attribute }} must be between {{ min }} and {{ max }} characters.",
	"between.numeric":   "The {{ attribute }} must be between {{ min }} and {{ max }}.",
	"between.array":     "The {{ attribute }} must have between {{ min }} and {{ max }} items.",
	RuleEmail:           "The {{ attribute }} must be a valid email address.",
	RuleURL:             "The {{ attribute }} format is invalid.",
	RuleAlpha:           "The {{ attribute }} may only contain letters.",
	RuleAlphaNum:        "The {{ attribute }} may only contain letters and numbers.",
	RuleAlphaDash:       "The {{ attribute }} may only contain letters, numbers, dashes and underscores.",
	RuleNumeric:         "The {{ attribute }} must be a number.",
	RuleInteger:         "The {{ attribute }} must be an integer.",
	RuleRegex:           "The {{ attribute }} format is invalid.",
	RuleIn:              "The selected {{ attribute }} is invalid.",
	RuleNotIn:           "The selected {{ attribute }} is invalid.",
	RuleSame:            "The {{ attribute }} and {{ other }} must match.",
	RuleDifferent:       "The {{ attribute }} and {{ other }} must be different.",
	RuleConfirmed:       "The {{ attribute }} confirmation does not match.",
	RuleGT:              "The {{ attribute }} must be greater than {{ value }}.",
	RuleGTE:             "The {{ attribute }} must be greater than or equal to {{ value }}.",
	RuleLT:              "The {{ attribute }} must be less than {{ value }}.",
	RuleLTE:             "The {{ attribute }} must be less than or equal to {{ value }}.",
	RuleUUID:            "The {{ attribute }} must be a valid UUID.",
	"exists":            "The {{ attribute }} has already been taken.",
}

// MessageOption configures a Messages catalogue.
type MessageOption func(*Messages)

// WithTemplates overrides message templates by key ("min.string", "exists").
func WithTemplates(templates map[string]string) MessageOption {
	return func(m *Messages) {
		for key, tmpl := range templates {
			if key = strings.TrimSpace(key); key != "" {
				m.templates[key] = tmpl
			}
		}
	}
}

// WithTranslator resolves templates through t before the built-in catalogue.
func WithTranslator(t Translator, locale string) MessageOption {
	return func(m *Messages) {
		m.translator = t
		m.locale = strings.TrimSpace(locale)
	}
}

// Messages renders rule failure messages from pongo2 templates.
type Messages struct {
	mu         sync.Mutex
	templates  map[string]string
	compiled   map[string]*pongo2.Template
	translator Translator
	locale     string
}

// NewMessages builds a catalogue seeded with the English defaults.
func NewMessages(options ...MessageOption) *Messages {
	m := &Messages{
		templates: make(map[string]string, len(defaultTemplates)),
		compiled:  make(map[string]*pongo2.Template),
	}
	for key, tmpl := range defaultTemplates {
		m.templates[key] = tmpl
	}
	for _, opt := range options {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Render produces the message for key, trying "<key>.<variant>" first when a
// variant is given. Rendering never fails: broken templates fall back to the
// raw template text and unknown keys to the default message.
func (m *Messages) Render(key, variant string, data map[string]any) string {
	if m == nil {
		m = NewMessages()
	}
	tmpl := m.lookup(key, variant)
	compiled, err := m.compile(tmpl)
	if err != nil {
		return tmpl
	}
	out, err := compiled.Execute(pongo2.Context(data))
	if err != nil {
		return tmpl
	}
	return strings.TrimSpace(out)
}

func (m *Messages) lookup(key, variant string) string {
	candidates := make([]string, 0, 3)
	if variant != "" {
		candidates = append(candidates, key+"."+variant)
	}
	candidates = append(candidates, key)

	if m.translator != nil {
		for _, candidate := range candidates {
			msg, err := m.translator.Translate(m.locale, "validation."+candidate)
			if err == nil && strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, candidate := range candidates {
		if tmpl, ok := m.templates[candidate]; ok {
			return tmpl
		}
	}
	return m.templates[defaultMessageKey]
}

func (m *Messages) compile(tmpl string) (*pongo2.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if compiled, ok := m.compiled[tmpl]; ok {
		return compiled, nil
	}
	// messages are plain text; HTML escaping is left to whoever renders them
	compiled, err := pongo2.FromString("{% autoescape off %}" + tmpl + "{% endautoescape %}")
	if err != nil {
		return nil, err
	}
	m.compiled[tmpl] = compiled
	return compiled, nil
}

// Humanize turns a field path into a display attribute ("owner.first_name"
// becomes "first name").
func Humanize(path string) string {
	name := path
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}

package form

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goliatone/go-formrules/pkg/remote"
	"github.com/goliatone/go-formrules/pkg/validation"
	"github.com/goliatone/go-formrules/pkg/visibility"
	"github.com/goliatone/go-formrules/pkg/visibility/expr"
)

// Option customises a Form.
type Option func(*Form)

// WithMode sets the default evaluation mode; fields may override it.
func WithMode(mode validation.Mode) Option {
	return func(f *Form) {
		f.mode = mode
		f.modeSet = true
	}
}

// WithDebounce sets the default debounce delay for value changes.
func WithDebounce(d time.Duration) Option {
	return func(f *Form) {
		if d >= 0 {
			f.debounce = d
			f.debounceSet = true
		}
	}
}

// WithEndpoints configures remote rule endpoints. Entries replace the ones
// declared by the form definition.
func WithEndpoints(endpoints remote.Endpoints) Option {
	return func(f *Form) {
		if f.endpoints == nil {
			f.endpoints = remote.Endpoints{}
		}
		for rule, ep := range endpoints {
			f.endpoints[rule] = ep
		}
	}
}

// WithRegistry supplies the rule registry. The form works on a clone.
func WithRegistry(registry *validation.Registry) Option {
	return func(f *Form) {
		f.registry = registry
	}
}

// WithTranslator resolves messages through t before the default templates.
func WithTranslator(t validation.Translator) Option {
	return func(f *Form) {
		f.translator = t
	}
}

// WithLocale selects the locale passed to the translator.
func WithLocale(locale string) Option {
	return func(f *Form) {
		f.locale = locale
	}
}

// WithMessages overrides message templates by key ("min.string", "exists").
func WithMessages(templates map[string]string) Option {
	return func(f *Form) {
		if f.templates == nil {
			f.templates = map[string]string{}
		}
		for k, v := range templates {
			f.templates[k] = v
		}
	}
}

// WithLogger enables logging of discarded results and failed remote checks.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithHTTPClient sets the client used by HTTP endpoints.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Form) {
		f.client = client
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(ev visibility.Evaluator) Option {
	return func(f *Form) {
		if ev != nil {
			f.evaluator = ev
		}
	}
}

// WithExtras exposes host facts to conditions under the `extras.` prefix.
func WithExtras(extras map[string]any) Option {
	return func(f *Form) {
		f.extras = extras
	}
}

// WithClock replaces the scheduler used for debouncing.
func WithClock(clock Clock) Option {
	return func(f *Form) {
		if clock != nil {
			f.clock = clock
		}
	}
}

func (f *Form) applyDefaults() {
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f.evaluator == nil {
		f.evaluator = expr.New()
	}
	if f.clock == nil {
		f.clock = realClock{}
	}
}

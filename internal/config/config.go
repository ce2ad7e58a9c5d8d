// Package config loads process configuration for the formrules commands from
// the environment. A .env file in the working directory is read first when
// present; real environment variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/remote"
	"github.com/goliatone/go-formrules/pkg/validation"
)

// Prefix is prepended to every variable name.
const Prefix = "FORMRULES_"

// Config holds the settings shared by the CLI and the server.
type Config struct {
	Mode     string        `env:"MODE" envDefault:"stop_on_first"`
	Debounce time.Duration `env:"DEBOUNCE" envDefault:"0s"`
	Locale   string        `env:"LOCALE" envDefault:"en"`

	// ExistsURL, when set, backs the exists rule for every form that does not
	// declare its own endpoint.
	ExistsURL    string        `env:"EXISTS_URL"`
	ExistsMethod string        `env:"EXISTS_METHOD" envDefault:"GET"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"5s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Addr     string `env:"ADDR" envDefault:":8080"`
	FormsDir string `env:"FORMS_DIR" envDefault:"forms"`
}

// Load reads .env files (missing files are ignored) and parses the process
// environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return parse(env.Options{Prefix: Prefix})
}

// MustLoad is Load for program start-up; it panics on error.
func MustLoad(files ...string) Config {
	cfg, err := Load(files...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromMap parses cfg from vars instead of the process environment. Keys carry
// the prefix.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the env parser cannot.
func (c Config) Validate() error {
	if _, err := validation.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("config: negative debounce %s", c.Debounce)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	if c.ExistsURL != "" {
		ep := remote.Endpoint{URL: c.ExistsURL, Method: c.ExistsMethod}
		if err := ep.Validate(remote.RuleExists); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", raw)
	}
	return level, nil
}

// Logger builds the structured logger described by LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// HTTPClient returns the client used for remote checks.
func (c Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.HTTPTimeout}
}

// FormOptions translates the configuration into form options for def.
// Settings the definition declares itself are left alone.
func (c Config) FormOptions(def model.FormModel, logger *slog.Logger) []form.Option {
	opts := []form.Option{
		form.WithHTTPClient(c.HTTPClient()),
		form.WithLogger(logger),
	}
	if def.Validation.Mode == "" {
		if mode, err := validation.ParseMode(c.Mode); err == nil {
			opts = append(opts, form.WithMode(mode))
		}
	}
	if def.Validation.Debounce == 0 && c.Debounce > 0 {
		opts = append(opts, form.WithDebounce(c.Debounce))
	}
	if def.Validation.Locale == "" && c.Locale != "" {
		opts = append(opts, form.WithLocale(c.Locale))
	}
	if _, declared := def.Endpoints[remote.RuleExists]; !declared && c.ExistsURL != "" {
		opts = append(opts, form.WithEndpoints(remote.Endpoints{
			remote.RuleExists: {URL: c.ExistsURL, Method: c.ExistsMethod},
		}))
	}
	return opts
}

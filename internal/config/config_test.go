package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/remote"
)

func TestFromMap_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "stop_on_first", cfg.Mode)
	assert.Equal(t, time.Duration(0), cfg.Debounce)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, "GET", cfg.ExistsMethod)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "forms", cfg.FormsDir)
}

func TestFromMap_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := FromMap(map[string]string{
		"FORMRULES_MODE":          "collect_all",
		"FORMRULES_DEBOUNCE":      "300ms",
		"FORMRULES_EXISTS_URL":    "https://api.example.com/exists",
		"FORMRULES_EXISTS_METHOD": "POST",
		"FORMRULES_LOG_FORMAT":    "json",
		"FORMRULES_LOG_LEVEL":     "debug",
		"MODE":                    "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "collect_all", cfg.Mode)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.Equal(t, "https://api.example.com/exists", cfg.ExistsURL)
	assert.Equal(t, "POST", cfg.ExistsMethod)
}

func TestFromMap_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]map[string]string{
		"mode":       {"FORMRULES_MODE": "sometimes"},
		"debounce":   {"FORMRULES_DEBOUNCE": "soon"},
		"log level":  {"FORMRULES_LOG_LEVEL": "loud"},
		"log format": {"FORMRULES_LOG_FORMAT": "xml"},
		"method":     {"FORMRULES_EXISTS_URL": "https://x.test", "FORMRULES_EXISTS_METHOD": "TRACE"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := FromMap(vars)
			require.Error(t, err)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FORMRULES_LOCALE=es\nFORMRULES_ADDR=:9090\n"), 0o600))

	t.Setenv("FORMRULES_ADDR", ":7070")
	t.Setenv("FORMRULES_LOCALE", "")
	require.NoError(t, os.Unsetenv("FORMRULES_LOCALE"))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "es", cfg.Locale)
	assert.Equal(t, ":7070", cfg.Addr, "process environment wins over .env")
}

func TestConfig_Logger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "field", "email")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %q", out)
	assert.Contains(t, out, `"field":"email"`)
}

func TestConfig_FormOptions(t *testing.T) {
	t.Parallel()

	cfg, err := FromMap(map[string]string{
		"FORMRULES_EXISTS_URL": "https://api.example.com/exists",
		"FORMRULES_DEBOUNCE":   "100ms",
	})
	require.NoError(t, err)

	bare := cfg.FormOptions(model.FormModel{ID: "a"}, nil)
	declared := cfg.FormOptions(model.FormModel{
		ID:         "b",
		Validation: model.ValidationConfig{Mode: "collect_all", Debounce: model.Duration(time.Second), Locale: "fr"},
		Endpoints:  remote.Endpoints{remote.RuleExists: {URL: "https://other.test", Method: "GET"}},
	}, nil)

	// client, logger, mode, debounce, locale, exists endpoint
	assert.Len(t, bare, 6)
	// client, logger
	assert.Len(t, declared, 2)
}

// Package testsupport holds helpers shared by the package tests: form
// builders that fail the test on error and a manually advanced clock.
package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/model"
)

// SettleTimeout bounds Settle.
const SettleTimeout = 2 * time.Second

// MustForm builds a form or fails the test.
func MustForm(t testing.TB, def model.FormModel, options ...form.Option) *form.Form {
	t.Helper()
	f, err := form.New(def, options...)
	if err != nil {
		t.Fatalf("form.New: %v", err)
	}
	return f
}

// MustLoad parses a YAML or JSON definition or fails the test.
func MustLoad(t testing.TB, doc string) model.FormModel {
	t.Helper()
	def, err := model.Load([]byte(doc))
	if err != nil {
		t.Fatalf("model.Load: %v", err)
	}
	return def
}

// MustLoadForm parses doc and builds the form.
func MustLoadForm(t testing.TB, doc string, options ...form.Option) *form.Form {
	t.Helper()
	return MustForm(t, MustLoad(t, doc), options...)
}

// MustField looks up a field by path or fails the test.
func MustField(t testing.TB, f *form.Form, path string) *form.Field {
	t.Helper()
	fl, ok := f.Field(path)
	if !ok {
		t.Fatalf("field %q not found", path)
	}
	return fl
}

// Settle waits for every pending validation of f.
func Settle(t testing.TB, f *form.Form) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), SettleTimeout)
	defer cancel()
	if err := f.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
}

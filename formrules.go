// Package formrules is the convenience entry point: it loads a form
// definition from YAML, JSON or an OpenAPI operation and builds a live form
// from it. The packages under pkg/ expose the individual pieces.
package formrules

import (
	"context"
	"net/http"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/openapi"
)

// Form aliases form.Form.
type Form = form.Form

// Option aliases form.Option.
type Option = form.Option

// FormModel aliases model.FormModel.
type FormModel = model.FormModel

// New builds a form from a definition.
func New(def FormModel, options ...Option) (*Form, error) {
	return form.New(def, options...)
}

// Load parses a YAML or JSON definition and builds the form.
func Load(data []byte, options ...Option) (*Form, error) {
	def, err := model.Load(data)
	if err != nil {
		return nil, err
	}
	return form.New(def, options...)
}

// LoadFile reads a definition file and builds the form.
func LoadFile(path string, options ...Option) (*Form, error) {
	def, err := model.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return form.New(def, options...)
}

// FromOpenAPI builds the form for an operation's request body. URL sources
// are fetched with client (http.DefaultClient when nil).
func FromOpenAPI(ctx context.Context, src openapi.Source, operationID string, client *http.Client, options ...Option) (*Form, error) {
	raw, err := openapi.Read(ctx, src, client)
	if err != nil {
		return nil, err
	}
	def, err := openapi.FormFromDocument(ctx, raw, operationID)
	if err != nil {
		return nil, err
	}
	return form.New(def, options...)
}

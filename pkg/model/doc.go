// Package model defines form definitions: fields with declarative rule specs,
// visibility conditions, nested groups, form-level validation defaults and
// remote endpoints. Definitions are read from YAML or JSON documents (Load,
// LoadFile) or derived from OpenAPI request bodies by pkg/openapi, and are
// turned into live forms by pkg/form.
package model

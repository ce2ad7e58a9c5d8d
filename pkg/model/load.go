package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formrules/pkg/validation"
)

var (
	// ErrEmptyDocument is returned for blank form documents.
	ErrEmptyDocument = errors.New("model: form document is empty")
	// ErrInvalidForm wraps structural problems found by Validate.
	ErrInvalidForm = errors.New("model: invalid form")
)

// Load parses a JSON or YAML form document and validates its structure.
func Load(data []byte) (FormModel, error) {
	return parse(data, "document")
}

// LoadFile reads and parses the form document at path.
func LoadFile(path string) (FormModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FormModel{}, fmt.Errorf("model: read %s: %w", path, err)
	}
	return parse(data, path)
}

// LoadFS parses every .json/.yaml/.yml document in fsys keyed by form id.
func LoadFS(fsys fs.FS) (map[string]FormModel, error) {
	forms := make(map[string]FormModel)
	if fsys == nil {
		return forms, nil
	}
	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isFormFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("model: read %s: %w", path, err)
		}
		form, err := parse(data, path)
		if err != nil {
			return err
		}
		if _, exists := forms[form.ID]; exists {
			return fmt.Errorf("model: duplicate form %q (file %s)", form.ID, path)
		}
		forms[form.ID] = form
		return nil
	})
	if err != nil {
		return nil, err
	}
	return forms, nil
}

func isFormFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func parse(data []byte, source string) (FormModel, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return FormModel{}, fmt.Errorf("%w: %s", ErrEmptyDocument, source)
	}

	var form FormModel
	var err error
	if strings.HasPrefix(trimmed, "{") {
		err = json.Unmarshal(data, &form)
	} else {
		err = yaml.Unmarshal(data, &form)
	}
	if err != nil {
		return FormModel{}, fmt.Errorf("model: parse %s: %w", source, err)
	}
	if err := form.Validate(); err != nil {
		return FormModel{}, fmt.Errorf("model: %s: %w", source, err)
	}
	return form, nil
}

// Validate checks field names, nesting and modes. Rule names are checked when
// the form is built against a registry.
func (m FormModel) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidForm)
	}
	if m.Validation.Mode != "" {
		if _, err := validation.ParseMode(m.Validation.Mode); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidForm, err)
		}
	}
	return validateFields("", m.Fields)
}

func validateFields(prefix string, fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("%w: field under %q has no name", ErrInvalidForm, displayPrefix(prefix))
		}
		if strings.Contains(name, ".") {
			return fmt.Errorf("%w: field name %q must not contain dots", ErrInvalidForm, name)
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidForm, path)
		}
		seen[name] = struct{}{}

		if field.Mode != "" {
			if _, err := validation.ParseMode(field.Mode); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidForm, path, err)
			}
		}
		if len(field.Nested) > 0 && field.Type != "" && !field.Type.IsNested() {
			return fmt.Errorf("%w: field %q of type %s cannot have nested fields", ErrInvalidForm, path, field.Type)
		}
		if field.Type.IsNested() && len(field.Nested) == 0 {
			return fmt.Errorf("%w: group %q has no fields", ErrInvalidForm, path)
		}
		if err := validateFields(path, field.Nested); err != nil {
			return err
		}
	}
	return nil
}

func displayPrefix(prefix string) string {
	if prefix == "" {
		return "<root>"
	}
	return prefix
}

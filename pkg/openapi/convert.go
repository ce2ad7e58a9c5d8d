package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"

	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/rulespec"
	"github.com/goliatone/go-formrules/pkg/validation"
)

// ExtensionKey is the vendor extension read from operations and properties.
const ExtensionKey = "x-formrules"

var (
	// ErrOperationNotFound is returned when no operation matches the requested id.
	ErrOperationNotFound = errors.New("openapi: operation not found")
	// ErrNoRequestSchema is returned for operations without an object request body.
	ErrNoRequestSchema = errors.New("openapi: operation has no request body schema")
)

// preferred request body media types, in order.
var contentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// OperationInfo summarises one operation of a document.
type OperationInfo struct {
	ID      string
	Method  string
	Path    string
	Summary string
}

// Options tune document parsing.
type Options struct {
	// AllowExternalRefs lets the loader follow $refs outside the document.
	AllowExternalRefs bool
}

// Option mutates Options.
type Option func(*Options)

// WithExternalRefs toggles external reference resolution.
func WithExternalRefs(enabled bool) Option {
	return func(o *Options) { o.AllowExternalRefs = enabled }
}

type operation struct {
	OperationInfo
	op *openapi3.Operation
}

// Operations lists the operations declared by raw, sorted by path then method.
func Operations(ctx context.Context, raw []byte, opts ...Option) ([]OperationInfo, error) {
	ops, err := parseOperations(ctx, raw, opts)
	if err != nil {
		return nil, err
	}
	out := make([]OperationInfo, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.OperationInfo)
	}
	return out, nil
}

// FormFromDocument builds the form for operationID from raw. Operations
// without an operationId are addressed as "method:path", e.g. "post:/users".
func FormFromDocument(ctx context.Context, raw []byte, operationID string, opts ...Option) (model.FormModel, error) {
	ops, err := parseOperations(ctx, raw, opts)
	if err != nil {
		return model.FormModel{}, err
	}
	want := strings.TrimSpace(operationID)
	for _, op := range ops {
		if op.ID != want {
			continue
		}
		return formFromOperation(op)
	}
	return model.FormModel{}, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
}

func parseOperations(ctx context.Context, raw []byte, opts []Option) ([]operation, error) {
	cfg := Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = cfg.AllowExternalRefs

	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: parse document: %w", err)
	}
	if doc.Paths == nil {
		return nil, nil
	}

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for path := range paths {
		keys = append(keys, path)
	}
	sort.Strings(keys)

	var out []operation
	for _, path := range keys {
		item := paths[path]
		if item == nil {
			continue
		}
		methods := item.Operations()
		names := make([]string, 0, len(methods))
		for method := range methods {
			names = append(names, method)
		}
		sort.Strings(names)
		for _, method := range names {
			op := methods[method]
			if op == nil {
				continue
			}
			id := strings.TrimSpace(op.OperationID)
			if id == "" {
				id = strings.ToLower(method) + ":" + path
			}
			out = append(out, operation{
				OperationInfo: OperationInfo{ID: id, Method: strings.ToUpper(method), Path: path, Summary: op.Summary},
				op:            op,
			})
		}
	}
	return out, nil
}

func formFromOperation(op operation) (model.FormModel, error) {
	schema := requestSchema(op.op)
	if schema == nil || len(schema.Properties) == 0 {
		return model.FormModel{}, fmt.Errorf("%w: %s", ErrNoRequestSchema, op.ID)
	}

	form := model.FormModel{
		ID:       op.ID,
		Endpoint: op.Path,
		Method:   op.Method,
		Summary:  op.Summary,
	}

	var ext formExtension
	if err := decodeExtension(op.op.Extensions, &ext); err != nil {
		return model.FormModel{}, fmt.Errorf("openapi: operation %s: %w", op.ID, err)
	}
	form.Validation = model.ValidationConfig{
		Mode:     ext.Mode,
		Debounce: ext.Debounce,
		Locale:   ext.Locale,
		Messages: ext.Messages,
	}

	fields, err := fieldsFromSchema(schema)
	if err != nil {
		return model.FormModel{}, fmt.Errorf("openapi: operation %s: %w", op.ID, err)
	}
	form.Fields = fields
	if err := form.Validate(); err != nil {
		return model.FormModel{}, err
	}
	return form, nil
}

func requestSchema(op *openapi3.Operation) *openapi3.Schema {
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	content := op.RequestBody.Value.Content
	for _, mime := range contentTypes {
		if media := content.Get(mime); media != nil && media.Schema != nil && media.Schema.Value != nil {
			return media.Schema.Value
		}
	}
	return nil
}

// formExtension is the operation-level x-formrules payload.
type formExtension struct {
	Mode     string            `json:"mode"`
	Debounce model.Duration    `json:"debounce"`
	Locale   string            `json:"locale"`
	Messages map[string]string `json:"messages"`
}

// fieldExtension is the property-level x-formrules payload.
type fieldExtension struct {
	Rules      rulespec.Spec  `json:"rules"`
	Conditions string         `json:"conditions"`
	Debounce   model.Duration `json:"debounce"`
	Mode       string         `json:"mode"`
	Label      string         `json:"label"`
	Submit     *bool          `json:"submit"`
	Order      *int           `json:"order"`
}

func decodeExtension(extensions map[string]any, target any) error {
	raw, ok := extensions[ExtensionKey]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ExtensionKey, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", ExtensionKey, err)
	}
	return nil
}

type orderedField struct {
	field model.Field
	order int
}

// fieldsFromSchema converts object properties into fields. Properties with an
// explicit order come first, the rest follow by name.
func fieldsFromSchema(schema *openapi3.Schema) ([]model.Field, error) {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	items := make([]orderedField, 0, len(schema.Properties))
	for name, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		field, order, err := fieldFromSchema(name, ref.Value, required[name])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		items = append(items, orderedField{field: field, order: order})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].order != items[j].order {
			return items[i].order < items[j].order
		}
		return items[i].field.Name < items[j].field.Name
	})

	out := make([]model.Field, 0, len(items))
	for _, item := range items {
		out = append(out, item.field)
	}
	return out, nil
}

const unordered = int(^uint(0) >> 1)

func fieldFromSchema(name string, schema *openapi3.Schema, required bool) (model.Field, int, error) {
	var ext fieldExtension
	if err := decodeExtension(schema.Extensions, &ext); err != nil {
		return model.Field{}, 0, err
	}

	field := model.Field{
		Name:        name,
		Type:        fieldType(schema),
		Label:       firstNonEmpty(ext.Label, schema.Title),
		Description: schema.Description,
		Default:     schema.Default,
		Conditions:  ext.Conditions,
		Debounce:    ext.Debounce,
		Mode:        ext.Mode,
		Submit:      ext.Submit,
	}
	if len(schema.Enum) > 0 {
		field.Enum = append([]any(nil), schema.Enum...)
	}

	if field.Type == model.FieldTypeObject {
		nested, err := fieldsFromSchema(schema)
		if err != nil {
			return model.Field{}, 0, err
		}
		field.Nested = nested
	}

	rules := append(schemaRules(schema, field.Type, required), ext.Rules.Rules()...)
	spec, err := rulespec.NewSpec(rules)
	if err != nil {
		return model.Field{}, 0, err
	}
	field.Rules = spec

	order := unordered
	if ext.Order != nil {
		order = *ext.Order
	}
	return field, order, nil
}

func fieldType(schema *openapi3.Schema) model.FieldType {
	switch {
	case schema.Type == nil:
		if len(schema.Properties) > 0 {
			return model.FieldTypeObject
		}
		return model.FieldTypeString
	case schema.Type.Includes(openapi3.TypeInteger):
		return model.FieldTypeInteger
	case schema.Type.Includes(openapi3.TypeNumber):
		return model.FieldTypeNumber
	case schema.Type.Includes(openapi3.TypeBoolean):
		return model.FieldTypeBoolean
	case schema.Type.Includes(openapi3.TypeArray):
		return model.FieldTypeArray
	case schema.Type.Includes(openapi3.TypeObject):
		if len(schema.Properties) > 0 {
			return model.FieldTypeObject
		}
		return model.FieldTypeString
	default:
		return model.FieldTypeString
	}
}

// schemaRules maps JSON Schema constraints onto rules. Objects carry no rules
// of their own; their children do.
func schemaRules(schema *openapi3.Schema, typ model.FieldType, required bool) []rulespec.Rule {
	if typ == model.FieldTypeObject {
		return nil
	}

	var rules []rulespec.Rule
	add := func(name string, params ...string) {
		rules = append(rules, rulespec.Rule{Name: name, Params: params})
	}

	switch {
	case required:
		add(validation.RuleRequired)
	default:
		add(validation.RuleNullable)
	}

	switch typ {
	case model.FieldTypeInteger:
		add(validation.RuleInteger)
	case model.FieldTypeNumber:
		add(validation.RuleNumeric)
	}

	switch strings.ToLower(schema.Format) {
	case "email":
		add(validation.RuleEmail)
	case "uri", "url":
		add(validation.RuleURL)
	case "uuid":
		add(validation.RuleUUID)
	}

	switch typ {
	case model.FieldTypeInteger, model.FieldTypeNumber:
		if schema.Min != nil {
			add(validation.RuleMin, formatNumber(*schema.Min))
		}
		if schema.Max != nil {
			add(validation.RuleMax, formatNumber(*schema.Max))
		}
	case model.FieldTypeArray:
		if schema.MinItems > 0 {
			add(validation.RuleMin, strconv.FormatUint(schema.MinItems, 10))
		}
		if schema.MaxItems != nil {
			add(validation.RuleMax, strconv.FormatUint(*schema.MaxItems, 10))
		}
	case model.FieldTypeString:
		if schema.MinLength > 0 {
			add(validation.RuleMin, strconv.FormatUint(schema.MinLength, 10))
		}
		if schema.MaxLength != nil {
			add(validation.RuleMax, strconv.FormatUint(*schema.MaxLength, 10))
		}
		if schema.Pattern != "" {
			add(validation.RuleRegex, schema.Pattern)
		}
	}

	if len(schema.Enum) > 0 && typ != model.FieldTypeArray {
		values := make([]string, 0, len(schema.Enum))
		for _, v := range schema.Enum {
			values = append(values, fmt.Sprint(v))
		}
		add(validation.RuleIn, values...)
	}
	return rules
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SizeKind classifies how a value is measured by size rules and which message
// variant (min.string, min.numeric, min.array) is rendered.
type SizeKind string

const (
	SizeString  SizeKind = "string"
	SizeNumeric SizeKind = "numeric"
	SizeArray   SizeKind = "array"
)

// IsEmpty reports whether a value counts as "not filled".
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return len(v) == 0
	case bool:
		return false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmpty(rv.Elem().Interface())
	}
	return false
}

// Size measures a value: rune count for strings, the value itself for numbers
// and the length of collections.
func Size(value any, numeric bool) (float64, SizeKind, bool) {
	if value == nil {
		return 0, SizeString, true
	}
	if n, ok := toNumber(value); ok {
		if _, isString := value.(string); !isString || numeric {
			return n, SizeNumeric, true
		}
	}
	switch v := value.(type) {
	case string:
		return float64(utf8.RuneCountInString(v)), SizeString, true
	case []byte:
		return float64(len(v)), SizeString, true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), SizeArray, true
	}
	return 0, "", false
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case interface{ String() string }:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

// equalValues compares loosely: numbers by value, everything else by string form.
func equalValues(a, b any) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
	}
	if reflect.TypeOf(a) == reflect.TypeOf(b) && a != nil && reflect.TypeOf(a).Comparable() {
		return a == b
	}
	return toString(a) == toString(b)
}

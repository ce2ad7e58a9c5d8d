// Package openapi derives form definitions from the request body schema of an
// OpenAPI 3 operation. Schema constraints become rule specifications:
// required, minLength/maxLength, minimum/maximum, pattern, enum and the email,
// uri and uuid formats. Per-property "x-formrules" extensions add rules,
// conditions, debounce and mode on top.
package openapi

package prompt

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("prompt: aborted")
	// ErrInvalid is returned when the filled form still fails validation.
	ErrInvalid = errors.New("prompt: form is invalid")
)

package live

import "github.com/goliatone/go-formrules/pkg/form"

// Client frame types.
const (
	FrameChange   = "change"
	FrameUpdate   = "update"
	FrameValidate = "validate"
	FrameErrors   = "errors"
	FrameReset    = "reset"
	FrameClear    = "clear"
)

// Server frame types.
const (
	FrameHello  = "hello"
	FrameState  = "state"
	FrameResult = "result"
	FrameError  = "error"
)

// ClientFrame is a message sent by the browser.
type ClientFrame struct {
	Type  string         `json:"type"`
	Field string         `json:"field,omitempty"`
	Value any            `json:"value,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	// Errors is a server error payload for FrameErrors.
	Errors map[string]any `json:"errors,omitempty"`
}

// ServerFrame is a message pushed to the browser.
type ServerFrame struct {
	Type      string              `json:"type"`
	Session   string              `json:"session,omitempty"`
	Form      string              `json:"form,omitempty"`
	Fields    []string            `json:"fields,omitempty"`
	Field     string              `json:"field,omitempty"`
	State     string              `json:"state,omitempty"`
	Available *bool               `json:"available,omitempty"`
	Messages  []string            `json:"messages,omitempty"`
	Valid     *bool               `json:"valid,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	FormErrs  []string            `json:"form_errors,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func stateFrame(ev form.Event) ServerFrame {
	available := ev.Available
	return ServerFrame{
		Type:      FrameState,
		Field:     ev.Field,
		State:     ev.State.String(),
		Available: &available,
		Messages:  ev.Messages,
	}
}

func resultFrame(f *form.Form, valid bool) ServerFrame {
	return ServerFrame{
		Type:     FrameResult,
		Valid:    &valid,
		Errors:   f.Errors(),
		FormErrs: f.FormErrors(),
	}
}

func errorFrame(err error) ServerFrame {
	return ServerFrame{Type: FrameError, Error: err.Error()}
}

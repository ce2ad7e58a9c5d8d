package form

import "errors"

var (
	// ErrNestedValue is returned when setting the value of a group directly.
	ErrNestedValue = errors.New("form: nested fields take their value from their children")
	// ErrUnknownField is returned for paths that do not name a field.
	ErrUnknownField = errors.New("form: unknown field")
	// ErrSuperseded is returned by Validate when a newer trigger replaced the
	// cycle before it finished. The newer cycle owns the field state.
	ErrSuperseded = errors.New("form: validation superseded")
)

// State is the validation state of a field.
type State int

const (
	Idle State = iota
	Validating
	Valid
	Invalid
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "idle"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

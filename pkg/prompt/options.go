package prompt

import (
	"io"
	"os"
)

// OutputFormat controls how collected values are serialized.
type OutputFormat string

const (
	// OutputFormatJSON emits application/json payloads.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatFormURLEncoded emits application/x-www-form-urlencoded payloads.
	OutputFormatFormURLEncoded OutputFormat = "form"
	// OutputFormatPrettyText emits one path=value line per field.
	OutputFormatPrettyText OutputFormat = "pretty"
)

// Option configures a Filler.
type Option func(*Filler)

// WithDriver overrides the prompt driver.
func WithDriver(driver Driver) Option {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithOutputFormat selects the serialization format.
func WithOutputFormat(format OutputFormat) Option {
	return func(f *Filler) {
		if format != "" {
			f.format = format
		}
	}
}

// WithMaxAttempts bounds how often a rejected field is asked again. Zero
// means no limit.
func WithMaxAttempts(n int) Option {
	return func(f *Filler) {
		if n >= 0 {
			f.maxAttempts = n
		}
	}
}

// WithOutput sets where the default driver prints messages.
func WithOutput(w io.Writer) Option {
	return func(f *Filler) {
		if w != nil {
			f.out = w
		}
	}
}

func defaultOutput() io.Writer { return os.Stdout }

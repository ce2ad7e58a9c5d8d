// Package live serves forms over WebSocket. Each connection owns one form
// instance: the browser sends value changes and the session pushes field
// states back as validation settles, including results of debounced and
// remote rules that finish after the change frame was handled.
package live

package form

import "time"

// Clock schedules debounced work. The default uses time.AfterFunc; tests
// substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a scheduled call. Stop reports whether it prevented the call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

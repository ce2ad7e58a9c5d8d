package form

import "sync"

// Event names emitted by a form.
const (
	EventChange       = "change"
	EventValidating   = "validating"
	EventValidated    = "validated"
	EventReset        = "reset"
	EventClear        = "clear"
	EventAvailability = "availability"
)

// Event describes something that happened to a field. Form-wide reset and
// clear events carry an empty Field.
type Event struct {
	Name      string
	Field     string
	Value     any
	Old       any
	State     State
	Available bool
	Messages  []string
}

// Handler receives events. Handlers run synchronously on the goroutine that
// produced the event and must not block.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

type bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
}

func (b *bus) on(name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[name]
			for i, sub := range subs {
				if sub.id == id {
					b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *bus) emit(ev Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[ev.Name]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.handler(ev)
	}
}

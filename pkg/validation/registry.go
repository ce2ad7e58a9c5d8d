package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps rule names to definitions. Registries are safe for concurrent
// use; later registrations replace earlier ones with the same name.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry constructs a registry with the built-in rules registered.
func NewRegistry() *Registry {
	reg := &Registry{defs: make(map[string]Definition)}
	for _, def := range builtinDefinitions() {
		reg.defs[def.Name] = def
	}
	return reg
}

// Register adds or replaces a rule definition.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return fmt.Errorf("validation: register %q on nil registry", def.Name)
	}
	def.Name = strings.TrimSpace(def.Name)
	if err := def.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = make(map[string]Definition)
	}
	r.defs[def.Name] = def
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[strings.TrimSpace(name)]
	return def, ok
}

// Names lists registered rule names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy; forms register their remote rules on a
// clone so a shared registry is left untouched.
func (r *Registry) Clone() *Registry {
	out := &Registry{defs: make(map[string]Definition)}
	if r == nil {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, def := range r.defs {
		out.defs[name] = def
	}
	return out
}

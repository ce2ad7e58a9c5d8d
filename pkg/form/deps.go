package form

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-formrules/pkg/visibility"
)

// tracker is the reverse dependency map: referenced path -> fields whose rules
// or conditions read it. It is built once per form and read-only afterwards.
type tracker struct {
	form       *Form
	dependents map[string][]*Field
}

func newTracker(f *Form) (*tracker, error) {
	t := &tracker{form: f, dependents: make(map[string][]*Field)}
	for _, fl := range f.order {
		var refs []string
		if fl.set != nil {
			exists := func(candidate string) bool {
				_, ok := f.resolve(fl, candidate)
				return ok
			}
			refs = append(refs, fl.set.References(exists)...)
		}
		if cond := strings.TrimSpace(fl.def.Conditions); cond != "" {
			idents, err := visibility.Dependencies(f.evaluator, cond)
			if err != nil {
				return nil, fmt.Errorf("form: field %q condition: %w", fl.path, err)
			}
			refs = append(refs, idents...)
		}
		for _, ref := range refs {
			target, ok := f.resolve(fl, ref)
			if !ok || target == fl {
				continue
			}
			t.add(target.path, fl)
		}
	}
	return t, nil
}

func (t *tracker) add(referenced string, dependent *Field) {
	for _, existing := range t.dependents[referenced] {
		if existing == dependent {
			return
		}
	}
	t.dependents[referenced] = append(t.dependents[referenced], dependent)
}

// Dependents returns the paths of the fields that depend on path.
func (f *Form) Dependents(path string) []string {
	var out []string
	for _, fl := range f.deps.dependentsOf([]string{path}) {
		out = append(out, fl.path)
	}
	return out
}

// dependentsOf returns the distinct dependents of the changed paths and of
// their ancestors, in form order.
func (t *tracker) dependentsOf(paths []string) []*Field {
	hit := make(map[*Field]struct{})
	for _, path := range paths {
		for _, key := range withAncestors(path) {
			for _, dep := range t.dependents[key] {
				hit[dep] = struct{}{}
			}
		}
	}
	if len(hit) == 0 {
		return nil
	}
	out := make([]*Field, 0, len(hit))
	for _, fl := range t.form.order {
		if _, ok := hit[fl]; ok {
			out = append(out, fl)
		}
	}
	return out
}

// withAncestors returns path followed by every parent path: a.b.c, a.b, a.
func withAncestors(path string) []string {
	out := []string{path}
	for idx := strings.LastIndex(path, "."); idx > 0; idx = strings.LastIndex(path, ".") {
		path = path[:idx]
		out = append(out, path)
	}
	return out
}

package expr

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formrules/pkg/visibility"
)

// Evaluator is a small, dependency-free condition evaluator.
//
// Supported syntax:
// - truthiness: `newsletter`
// - comparisons: `country == "US"`, `plan != pro`, `age >= 18`, `password != ''`
// - composition: `a && (b || !c)`, also spelled `and`, `or`, `not`
//
// Identifiers are dotted paths into visibility.Context.Values; the `extras.`
// prefix reads visibility.Context.Extras instead. Compiled conditions are
// cached, so an Evaluator is cheap to call on every value change.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Program
}

// New returns an Evaluator with an empty cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*Program)}
}

// Eval reports whether condition holds. Empty conditions always hold.
func (e *Evaluator) Eval(fieldPath, condition string, ctx visibility.Context) (bool, error) {
	prog, err := e.compile(condition)
	if err != nil {
		return false, fmt.Errorf("expr: field %q: %w", fieldPath, err)
	}
	return prog.Eval(ctx)
}

// Dependencies lists the value paths the condition reads, excluding extras.
func (e *Evaluator) Dependencies(condition string) ([]string, error) {
	prog, err := e.compile(condition)
	if err != nil {
		return nil, err
	}
	return prog.Identifiers(), nil
}

func (e *Evaluator) compile(condition string) (*Program, error) {
	key := strings.TrimSpace(condition)
	e.mu.RLock()
	prog, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := Compile(key)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[string]*Program)
	}
	e.cache[key] = prog
	e.mu.Unlock()
	return prog, nil
}

// Program is a compiled condition.
type Program struct {
	source string
	root   node
}

// Compile parses condition. An empty condition compiles to a program that
// always holds.
func Compile(condition string) (*Program, error) {
	source := strings.TrimSpace(condition)
	prog := &Program{source: source}
	if source == "" {
		return prog, nil
	}
	lexemes, err := lex(source)
	if err != nil {
		return nil, err
	}
	if len(lexemes) == 0 {
		return prog, nil
	}
	root, err := parse(lexemes)
	if err != nil {
		return nil, err
	}
	prog.root = root
	return prog, nil
}

// String returns the source text.
func (p *Program) String() string { return p.source }

// Eval evaluates the program.
func (p *Program) Eval(ctx visibility.Context) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(ctx)
}

// Identifiers returns the distinct value paths read by the program in order of
// appearance. Paths under `extras.` are omitted.
func (p *Program) Identifiers() []string {
	if p == nil || p.root == nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, ident := range p.root.idents(nil) {
		ident = strings.TrimSpace(ident)
		if isExtras(ident) {
			continue
		}
		if _, dup := seen[ident]; dup {
			continue
		}
		seen[ident] = struct{}{}
		out = append(out, ident)
	}
	return out
}

func isExtras(ident string) bool {
	return strings.HasPrefix(strings.ToLower(ident), "extras.")
}

func lookup(ctx visibility.Context, ident string) (any, bool) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil, false
	}
	if isExtras(ident) {
		return lookupPath(ctx.Extras, ident[len("extras."):])
	}
	return lookupPath(ctx.Values, ident)
}

// lookupPath resolves a dotted path, preferring a literal dotted key.
func lookupPath(values map[string]any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if v, ok := values[path]; ok {
		return v, true
	}

	var current any = values
	for _, part := range strings.Split(path, ".") {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, true
}

func isNull(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	if n, ok := coerceNumber(value); ok {
		return n != 0
	}
	return true
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case nil:
		return false, false
	case bool:
		return v, true
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed, true
		}
	}
	return truthy(value), true
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(value)
	}
}

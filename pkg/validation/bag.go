package validation

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	plainPolicyOnce sync.Once
	plainPolicy     *bluemonday.Policy
)

// sanitizeMessage strips markup from externally supplied messages.
func sanitizeMessage(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	plainPolicyOnce.Do(func() {
		plainPolicy = bluemonday.StrictPolicy()
	})
	// StrictPolicy escapes entities; bag messages are stored as plain text
	return strings.TrimSpace(html.UnescapeString(plainPolicy.Sanitize(trimmed)))
}

// Entry is one message in the bag.
type Entry struct {
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// MessageBag holds the messages of one field from two independent sources:
// rule failures (replaced on every validation cycle) and injected messages,
// typically server-side errors, which survive re-validation until cleared.
type MessageBag struct {
	mu       sync.RWMutex
	rules    []Entry
	injected []string
}

// NewMessageBag returns an empty bag.
func NewMessageBag() *MessageBag { return &MessageBag{} }

// ReplaceRules swaps the rule-derived messages. Order is kept as given.
func (b *MessageBag) ReplaceRules(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = b.rules[:0]
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Rule]; dup && e.Rule != "" {
			continue
		}
		seen[e.Rule] = struct{}{}
		b.rules = append(b.rules, e)
	}
}

// ClearRules drops rule-derived messages only.
func (b *MessageBag) ClearRules() {
	b.mu.Lock()
	b.rules = nil
	b.mu.Unlock()
}

// Inject appends sanitized messages from an external source. Blank and
// duplicate messages are skipped.
func (b *MessageBag) Inject(messages ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, raw := range messages {
		msg := sanitizeMessage(raw)
		if msg == "" || containsString(b.injected, msg) {
			continue
		}
		b.injected = append(b.injected, msg)
	}
}

// ClearInjected drops injected messages only.
func (b *MessageBag) ClearInjected() {
	b.mu.Lock()
	b.injected = nil
	b.mu.Unlock()
}

// Clear drops every message.
func (b *MessageBag) Clear() {
	b.mu.Lock()
	b.rules = nil
	b.injected = nil
	b.mu.Unlock()
}

// Rules returns a copy of the rule entries.
func (b *MessageBag) Rules() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.rules) == 0 {
		return nil
	}
	out := make([]Entry, len(b.rules))
	copy(out, b.rules)
	return out
}

// Injected returns a copy of the injected messages.
func (b *MessageBag) Injected() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.injected) == 0 {
		return nil
	}
	out := make([]string, len(b.injected))
	copy(out, b.injected)
	return out
}

// Messages lists injected messages followed by rule messages.
func (b *MessageBag) Messages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.injected) == 0 && len(b.rules) == 0 {
		return nil
	}
	out := make([]string, 0, len(b.injected)+len(b.rules))
	out = append(out, b.injected...)
	for _, e := range b.rules {
		out = append(out, e.Message)
	}
	return out
}

// First returns the first message or "".
func (b *MessageBag) First() string {
	msgs := b.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0]
}

// Empty reports whether the bag holds no messages.
func (b *MessageBag) Empty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rules) == 0 && len(b.injected) == 0
}

func containsString(list []string, needle string) bool {
	for _, item := range list {
		if item == needle {
			return true
		}
	}
	return false
}

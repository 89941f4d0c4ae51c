package persona

import (
	"strings"
	"sync"
)

// Matcher scans message text against the ordered keyword rules. It is safe
// for concurrent use; Reload swaps the rule set wholesale for config hot
// reload.
type Matcher struct {
	mu    sync.RWMutex
	rules []KeywordRule
}

// NewMatcher creates a matcher over the given rules.
func NewMatcher(rules []KeywordRule) *Matcher {
	return &Matcher{rules: rules}
}

// Reload replaces the rule set.
func (m *Matcher) Reload(rules []KeywordRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
}

// Empty reports whether no rules are loaded.
func (m *Matcher) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules) == 0
}

// Match returns the first rule, in declaration order, whose keyword is
// contained in text. Containment is case-sensitive only when the rule
// says so.
func (m *Matcher) Match(text string) (KeywordRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := strings.ToLower(text)
	for _, rule := range m.rules {
		if rule.CaseSensitive {
			if strings.Contains(text, rule.Keyword) {
				return rule, true
			}
			continue
		}

		if strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			return rule, true
		}
	}

	return KeywordRule{}, false
}

package usecases

import (
	"strings"

	"github.com/huduma/answer-service/internal/entities"
)

// RuleMatcher answers greetings and frequently asked questions without
// any network call. It is immutable after construction.
type RuleMatcher struct {
	greetings map[string]string
	facts     []entities.Rule
}

// NewRuleMatcher normalizes every key once. Fact order is preserved and
// decides precedence when several keys occur in the same message.
func NewRuleMatcher(greetings, facts []entities.Rule) *RuleMatcher {
	m := &RuleMatcher{
		greetings: make(map[string]string, len(greetings)),
		facts:     make([]entities.Rule, 0, len(facts)),
	}
	for _, g := range greetings {
		key := Normalize(g.Key)
		if key == "" {
			continue
		}
		if _, dup := m.greetings[key]; !dup {
			m.greetings[key] = g.Reply
		}
	}
	for _, f := range facts {
		key := Normalize(f.Key)
		if key == "" {
			continue
		}
		m.facts = append(m.facts, entities.Rule{Key: key, Reply: f.Reply})
	}
	return m
}

// Match expects an already normalized message. Greetings must match
// exactly; facts match when their key is a substring of the message.
func (m *RuleMatcher) Match(normalized string) (entities.RuleMatch, bool) {
	if normalized == "" {
		return entities.RuleMatch{}, false
	}
	if reply, ok := m.greetings[normalized]; ok {
		return entities.RuleMatch{Reply: reply, Source: entities.SourceRuleBased}, true
	}
	for _, f := range m.facts {
		if strings.Contains(normalized, f.Key) {
			return entities.RuleMatch{Reply: f.Reply, Source: entities.SourceCached}, true
		}
	}
	return entities.RuleMatch{}, false
}

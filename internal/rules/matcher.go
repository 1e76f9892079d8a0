package rules

import (
	"sort"

	"github.com/palantir/stacktrace"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// Matcher holds every rule added from every rule set. Rule sets are appended
// in order, but precedence among rules is by score, never by insertion
// order.
type Matcher struct {
	rules []*Rule
}

// NewMatcher returns an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddRules appends rules from one rule set (one parsed rule file).
func (m *Matcher) AddRules(rules []*Rule) {
	m.rules = append(m.rules, rules...)
}

// Rules returns every rule added so far, in insertion order.
func (m *Matcher) Rules() []*Rule {
	return m.rules
}

// Best returns the highest-scoring rule matching obj, nil if none match. An
// ambiguous tie at the top score is reported as an error naming both source
// positions.
func (m *Matcher) Best(obj *schema.Object) (*Rule, error) {
	var candidates []*Rule
	for _, r := range m.rules {
		if r.Matches(obj) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score() > candidates[j].Score()
	})

	if len(candidates) > 1 && candidates[0].Score() == candidates[1].Score() {
		return nil, stacktrace.NewError(
			"%s matches more than one rule: at %s and %s",
			obj.QualifiedName(), candidates[0].Pos(), candidates[1].Pos(),
		)
	}

	return candidates[0], nil
}

// Package match defines the per-object Match: the resolved dump action and
// everything the planner and writer need to act on it, plus the two-pass
// dependency-propagation resolver that turns initial matches into final
// ones.
package match

import (
	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// Match is the per-object, post-propagation decision: the chosen action,
// inherited rule options, the inbound foreign keys that caused a `ref`
// marking, and accumulated errors. It is created by InitialMatches (initial
// action `unknown` if no rule matched), mutated by the Resolver and later by
// the Statement Generator, and immutable by emission time.
type Match struct {
	Object *schema.Object
	Action rules.Action

	NoColumns []string
	Replace   map[string]string
	Filter    string

	// Referrers is the set of inbound foreign keys that caused this object
	// to be marked `ref`, deduplicated by fkey identity.
	Referrers []*schema.ForeignKey

	// Errors accumulated during matching, propagation, or statement
	// generation. A non-empty list turns the whole plan into a fatal
	// condition, reported all at once.
	Errors []string

	// Rule is the rule that matched, nil if none did.
	Rule *rules.Rule

	// ImportStatement and ExportStatement are filled in by the Statement
	// Generator.
	ImportStatement string
	ExportStatement string
}

// AddError appends msg to the match's error list.
func (m *Match) AddError(msg string) {
	m.Errors = append(m.Errors, msg)
}

// HasErrors reports whether any error has been recorded.
func (m *Match) HasErrors() bool {
	return len(m.Errors) > 0
}

// AddReferrer appends fk to Referrers, deduplicated by pointer identity.
func (m *Match) AddReferrer(fk *schema.ForeignKey) {
	for _, existing := range m.Referrers {
		if existing == fk {
			return
		}
	}
	m.Referrers = append(m.Referrers, fk)
}

// ColumnOmitted reports whether col is listed in no_columns or replaced.
func (m *Match) ColumnOmitted(col string) bool {
	for _, c := range m.NoColumns {
		if c == col {
			return true
		}
	}
	_, replaced := m.Replace[col]
	return replaced
}

// Set is the full collection of Matches for a dump, keyed by object OID.
type Set struct {
	byOID map[schema.OID]*Match
	graph *schema.Graph
}

// NewSet returns an empty Set bound to graph.
func NewSet(graph *schema.Graph) *Set {
	return &Set{byOID: make(map[schema.OID]*Match), graph: graph}
}

// Get returns the Match for oid, nil if absent.
func (s *Set) Get(oid schema.OID) *Match {
	return s.byOID[oid]
}

// Put registers m under its object's OID.
func (s *Set) Put(m *Match) {
	s.byOID[m.Object.OID] = m
}

// All returns every Match, in the graph's insertion order.
func (s *Set) All() []*Match {
	out := make([]*Match, 0, len(s.byOID))
	for _, o := range s.graph.Objects() {
		if m := s.byOID[o.OID]; m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Errors collects every error across every Match, in graph order.
func (s *Set) Errors() []string {
	var out []string
	for _, m := range s.All() {
		out = append(out, m.Errors...)
	}
	return out
}

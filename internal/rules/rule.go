// Package rules implements the dump rule type, its scoring, and the matcher
// that picks the best rule for a database object.
package rules

import (
	"fmt"
	"regexp"

	"github.com/pgseldump/pgseldump/internal/schema"
)

// Action is the action a rule (or, later, a Match) carries.
type Action string

const (
	ActionDump    Action = "dump"
	ActionSkip    Action = "skip"
	ActionError   Action = "error"
	ActionRef     Action = "ref"
	ActionUnknown Action = "unknown"
)

// Rule is a declarative selector plus an action with options, parsed from a
// rule-file document.
type Rule struct {
	Names   map[string]struct{}
	NamesRe *regexp.Regexp

	Schemas   map[string]struct{}
	SchemasRe *regexp.Regexp

	Kinds map[schema.Kind]struct{}

	AdjustScore int

	Action     Action
	NoColumns  []string
	Replace    map[string]string
	Filter     string

	// Source position, for diagnostics. Both empty if unknown.
	Filename string
	Line     int
}

// Pos renders "filename:line" for error messages, matching the source's
// "%s:%s" formatting.
func (r *Rule) Pos() string {
	if r.Filename == "" && r.Line == 0 {
		return ":"
	}
	return fmt.Sprintf("%s:%d", r.Filename, r.Line)
}

// Score is the deterministic priority used to break ties among matching
// rules: the higher, the stronger.
func (r *Rule) Score() int {
	score := r.AdjustScore
	if len(r.Names) > 0 {
		score += 1000
	}
	if r.NamesRe != nil {
		score += 500
	}
	if len(r.Schemas) > 0 {
		score += 100
	}
	if r.SchemasRe != nil {
		score += 50
	}
	if len(r.Kinds) > 0 {
		score += 10
	}
	return score
}

// Matches reports whether obj satisfies every selector predicate set on r.
func (r *Rule) Matches(obj *schema.Object) bool {
	if len(r.Names) > 0 {
		if _, ok := r.Names[obj.Name]; !ok {
			return false
		}
	}
	if r.NamesRe != nil && !r.NamesRe.MatchString(obj.Name) {
		return false
	}

	if len(r.Schemas) > 0 {
		if _, ok := r.Schemas[obj.Schema]; !ok {
			return false
		}
	}
	if r.SchemasRe != nil && !r.SchemasRe.MatchString(obj.Schema) {
		return false
	}

	if len(r.Kinds) > 0 {
		if _, ok := r.Kinds[obj.Kind]; !ok {
			return false
		}
	}

	return true
}

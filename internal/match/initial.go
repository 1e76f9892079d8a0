package match

import (
	"fmt"

	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// InitialMatches builds one Match per object in graph, applying
// §4.1 of the rule matcher: extension objects without an opted-in dump
// condition are skipped outright; otherwise the best-scoring rule (if any)
// seeds the Match's action. An `error`-action rule appends a diagnostic but
// still seeds the action, so the Resolver and Statement Generator see a
// terminal action rather than `unknown`.
func InitialMatches(graph *schema.Graph, matcher *rules.Matcher) (*Set, error) {
	set := NewSet(graph)

	for _, obj := range graph.Objects() {
		m := &Match{Object: obj, Action: rules.ActionUnknown}

		if obj.Extension != "" && !obj.ExtConditionSet {
			m.Action = rules.ActionSkip
			set.Put(m)
			continue
		}

		best, err := matcher.Best(obj)
		if err != nil {
			return nil, err
		}

		if best != nil {
			m.Rule = best
			m.Action = best.Action
			m.NoColumns = best.NoColumns
			m.Replace = best.Replace
			m.Filter = best.Filter

			if best.Action == rules.ActionError {
				m.AddError(fmt.Sprintf(
					"%s matches the error rule at %s", obj.QualifiedName(), best.Pos(),
				))
			}
		}

		set.Put(m)
	}

	return set, nil
}

package match

import (
	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// PropagateForeignKeys runs Pass A (§4.2): for every table currently
// `dump` or `ref`, follow outbound foreign keys, marking the referenced
// table `ref` (promoting only from `unknown`) and recording the fkey as a
// referrer on the referenced table's Match. `skip` and `error` are terminal
// — never overwritten, never traversed through. A visited-set keyed on
// table OID breaks cycles (including self-referential fkeys, which are
// recorded but left for the query planner to handle).
func PropagateForeignKeys(graph *schema.Graph, set *Set) {
	visited := make(map[schema.OID]bool)

	for _, obj := range graph.Tables() {
		m := set.Get(obj.OID)
		if m == nil {
			continue
		}
		if m.Action == rules.ActionDump || m.Action == rules.ActionRef {
			walkForeignKeys(obj, set, visited)
		}
	}
}

func walkForeignKeys(obj *schema.Object, set *Set, visited map[schema.OID]bool) {
	if visited[obj.OID] {
		return
	}
	visited[obj.OID] = true

	for _, fk := range obj.OutboundFKeys {
		refMatch := set.Get(fk.RefTableOID)
		if refMatch == nil {
			continue
		}

		switch refMatch.Action {
		case rules.ActionSkip, rules.ActionError:
			continue
		case rules.ActionUnknown:
			refMatch.Action = rules.ActionRef
		case rules.ActionRef, rules.ActionDump:
			// Already included; still record the referrer below.
		}

		refMatch.AddReferrer(fk)

		if !fk.SelfReferential() {
			walkForeignKeys(refMatch.Object, set, visited)
		}
	}
}

// PropagateSequences runs Pass B (§4.2): every sequence still `unknown` is
// marked `ref` if any table consuming it via a non-omitted, non-replaced
// column is itself `dump` or `ref`.
func PropagateSequences(graph *schema.Graph, set *Set) {
	for _, seqObj := range graph.Sequences() {
		seqMatch := set.Get(seqObj.OID)
		if seqMatch == nil || seqMatch.Action != rules.ActionUnknown {
			continue
		}

		if sequenceIsUsedByDumpedTable(seqObj.OID, graph, set) {
			seqMatch.Action = rules.ActionRef
		}
	}
}

func sequenceIsUsedByDumpedTable(seqOID schema.OID, graph *schema.Graph, set *Set) bool {
	for _, tbl := range graph.Tables() {
		tm := set.Get(tbl.OID)
		if tm == nil || (tm.Action != rules.ActionDump && tm.Action != rules.ActionRef) {
			continue
		}

		for _, col := range tbl.Columns {
			if !containsOID(col.Sequences, seqOID) {
				continue
			}
			if tm.ColumnOmitted(col.Name) {
				continue
			}
			return true
		}
	}
	return false
}

func containsOID(oids []schema.OID, target schema.OID) bool {
	for _, o := range oids {
		if o == target {
			return true
		}
	}
	return false
}

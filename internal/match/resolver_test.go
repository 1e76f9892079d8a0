package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// buildChain creates tables t1 -> t2 -> t3 -> t4 (each fk1 column on the
// referencing table pointing at the id column of the next).
func buildChain(t *testing.T) *schema.Graph {
	t.Helper()
	g := schema.NewGraph()
	names := []string{"t1", "t2", "t3", "t4"}
	for i, n := range names {
		g.AddObject(&schema.Object{
			OID: schema.OID(i + 1), Schema: "public", Name: n, Kind: schema.KindTable,
			Columns: []schema.Column{{Name: "id"}, {Name: "data"}},
		})
	}
	for i := 0; i < len(names)-1; i++ {
		g.AddForeignKey(&schema.ForeignKey{
			Name: names[i] + "_fk", TableOID: schema.OID(i + 1), Columns: []string{"fk"},
			RefTableOID: schema.OID(i + 2), RefColumns: []string{"id"},
		})
	}
	return g
}

func TestPropagateForeignKeysChainClosure(t *testing.T) {
	g := buildChain(t)
	set := NewSet(g)
	for _, obj := range g.Objects() {
		action := rules.ActionUnknown
		if obj.Name == "t1" {
			action = rules.ActionDump
		}
		set.Put(&Match{Object: obj, Action: action})
	}

	PropagateForeignKeys(g, set)

	assert.Equal(t, rules.ActionDump, set.Get(1).Action)
	assert.Equal(t, rules.ActionRef, set.Get(2).Action)
	assert.Equal(t, rules.ActionRef, set.Get(3).Action)
	assert.Equal(t, rules.ActionUnknown, set.Get(4).Action, "t4 is never referenced")
}

func TestPropagateForeignKeysTerminalActionsNeverOverwritten(t *testing.T) {
	g := buildChain(t)
	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(2), Action: rules.ActionSkip})
	set.Put(&Match{Object: g.ByOID(3), Action: rules.ActionUnknown})
	set.Put(&Match{Object: g.ByOID(4), Action: rules.ActionUnknown})

	PropagateForeignKeys(g, set)

	assert.Equal(t, rules.ActionSkip, set.Get(2).Action)
	// t3 is never reached because t2 is terminal and not traversed through.
	assert.Equal(t, rules.ActionUnknown, set.Get(3).Action)
}

func TestPropagateForeignKeysDumpTableStillRecordsReferrer(t *testing.T) {
	// t1 -> t2, and t2 is independently marked `dump`.
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	g.AddObject(&schema.Object{OID: 2, Schema: "public", Name: "t2", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	fk := &schema.ForeignKey{Name: "fk1", TableOID: 1, Columns: []string{"fk"}, RefTableOID: 2, RefColumns: []string{"id"}}
	g.AddForeignKey(fk)

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(2), Action: rules.ActionDump})

	PropagateForeignKeys(g, set)

	assert.Equal(t, rules.ActionDump, set.Get(2).Action, "already dump, not demoted")
	require.Len(t, set.Get(2).Referrers, 1)
	assert.Same(t, fk, set.Get(2).Referrers[0])
}

func TestPropagateForeignKeysTwoReferrersConverge(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	g.AddObject(&schema.Object{OID: 2, Schema: "public", Name: "t2", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	g.AddObject(&schema.Object{OID: 3, Schema: "public", Name: "t3", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	fk1 := &schema.ForeignKey{Name: "fk1", TableOID: 1, Columns: []string{"fk"}, RefTableOID: 3, RefColumns: []string{"id"}}
	fk2 := &schema.ForeignKey{Name: "fk2", TableOID: 2, Columns: []string{"fk"}, RefTableOID: 3, RefColumns: []string{"id"}}
	g.AddForeignKey(fk1)
	g.AddForeignKey(fk2)

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(2), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(3), Action: rules.ActionUnknown})

	PropagateForeignKeys(g, set)

	assert.Equal(t, rules.ActionRef, set.Get(3).Action)
	require.Len(t, set.Get(3).Referrers, 2)
}

func TestPropagateForeignKeysCycleTerminates(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	g.AddObject(&schema.Object{OID: 2, Schema: "public", Name: "t2", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id"}}})
	g.AddForeignKey(&schema.ForeignKey{Name: "fk1", TableOID: 1, Columns: []string{"fk"}, RefTableOID: 2, RefColumns: []string{"id"}})
	g.AddForeignKey(&schema.ForeignKey{Name: "fk2", TableOID: 2, Columns: []string{"fk"}, RefTableOID: 1, RefColumns: []string{"id"}})

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(2), Action: rules.ActionUnknown})

	assert.NotPanics(t, func() {
		PropagateForeignKeys(g, set)
	})
	assert.Equal(t, rules.ActionRef, set.Get(2).Action)
}

func TestPropagateSequencesMarksRefWhenConsumingTableDumped(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{
		OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable,
		Columns: []schema.Column{{Name: "id", Sequences: []schema.OID{10}}},
	})
	g.AddObject(&schema.Object{OID: 10, Schema: "public", Name: "t1_id_seq", Kind: schema.KindSequence})

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(10), Action: rules.ActionUnknown})

	PropagateSequences(g, set)

	assert.Equal(t, rules.ActionRef, set.Get(10).Action)
}

func TestPropagateSequencesSkippedWhenColumnOmitted(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{
		OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable,
		Columns: []schema.Column{{Name: "id", Sequences: []schema.OID{10}}},
	})
	g.AddObject(&schema.Object{OID: 10, Schema: "public", Name: "t1_id_seq", Kind: schema.KindSequence})

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump, NoColumns: []string{"id"}})
	set.Put(&Match{Object: g.ByOID(10), Action: rules.ActionUnknown})

	PropagateSequences(g, set)

	assert.Equal(t, rules.ActionUnknown, set.Get(10).Action)
}

func TestPropagateSequencesSkippedWhenColumnReplaced(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{
		OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable,
		Columns: []schema.Column{{Name: "id", Sequences: []schema.OID{10}}},
	})
	g.AddObject(&schema.Object{OID: 10, Schema: "public", Name: "t1_id_seq", Kind: schema.KindSequence})

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump, Replace: map[string]string{"id": "0"}})
	set.Put(&Match{Object: g.ByOID(10), Action: rules.ActionUnknown})

	PropagateSequences(g, set)

	assert.Equal(t, rules.ActionUnknown, set.Get(10).Action)
}

func TestPropagateSequencesUnusedRemainsUnknown(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable})
	g.AddObject(&schema.Object{OID: 10, Schema: "public", Name: "orphan_seq", Kind: schema.KindSequence})

	set := NewSet(g)
	set.Put(&Match{Object: g.ByOID(1), Action: rules.ActionDump})
	set.Put(&Match{Object: g.ByOID(10), Action: rules.ActionUnknown})

	PropagateSequences(g, set)

	assert.Equal(t, rules.ActionUnknown, set.Get(10).Action)
}

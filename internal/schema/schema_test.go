package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphByOIDAndName(t *testing.T) {
	g := NewGraph()
	t1 := &Object{OID: 1, Schema: "public", Name: "t1", Kind: KindTable}
	g.AddObject(t1)

	assert.Same(t, t1, g.ByOID(1))
	assert.Same(t, t1, g.ByName("public", "t1"))
	assert.Nil(t, g.ByOID(2))
	assert.Nil(t, g.ByName("public", "missing"))
}

func TestGraphAddObjectDuplicateOIDPanics(t *testing.T) {
	g := NewGraph()
	g.AddObject(&Object{OID: 1, Schema: "public", Name: "t1", Kind: KindTable})
	assert.Panics(t, func() {
		g.AddObject(&Object{OID: 1, Schema: "public", Name: "t2", Kind: KindTable})
	})
}

func TestGraphAddForeignKeyPopulatesBothSides(t *testing.T) {
	g := NewGraph()
	t1 := &Object{OID: 1, Schema: "public", Name: "t1", Kind: KindTable}
	t2 := &Object{OID: 2, Schema: "public", Name: "t2", Kind: KindTable}
	g.AddObject(t1)
	g.AddObject(t2)

	fk := &ForeignKey{Name: "t1_t2_fk", TableOID: 1, Columns: []string{"t2_id"}, RefTableOID: 2, RefColumns: []string{"id"}}
	g.AddForeignKey(fk)

	require.Len(t, t1.OutboundFKeys, 1)
	assert.Same(t, fk, t1.OutboundFKeys[0])
	require.Len(t, t2.InboundFKeys, 1)
	assert.Same(t, fk, t2.InboundFKeys[0])
}

func TestForeignKeySelfReferential(t *testing.T) {
	fk := &ForeignKey{TableOID: 1, RefTableOID: 1}
	assert.True(t, fk.SelfReferential())

	fk2 := &ForeignKey{TableOID: 1, RefTableOID: 2}
	assert.False(t, fk2.SelfReferential())
}

func TestObjectDumpable(t *testing.T) {
	table := &Object{Kind: KindTable}
	assert.True(t, table.Dumpable())

	view := &Object{Kind: "view"}
	assert.False(t, view.Dumpable())

	extNoCondition := &Object{Kind: KindTable, Extension: "postgis"}
	assert.False(t, extNoCondition.Dumpable())

	extWithCondition := &Object{Kind: KindTable, Extension: "postgis", ExtConditionSet: true, ExtCondition: ""}
	assert.True(t, extWithCondition.Dumpable())
}

func TestObjectColumnByName(t *testing.T) {
	o := &Object{Columns: []Column{{Name: "id"}, {Name: "data"}}}
	assert.NotNil(t, o.ColumnByName("data"))
	assert.Nil(t, o.ColumnByName("missing"))
}

func TestGraphKindFilters(t *testing.T) {
	g := NewGraph()
	g.AddObject(&Object{OID: 1, Schema: "public", Name: "t1", Kind: KindTable})
	g.AddObject(&Object{OID: 2, Schema: "public", Name: "s1", Kind: KindSequence})
	g.AddObject(&Object{OID: 3, Schema: "public", Name: "mv1", Kind: KindMaterializedView})
	g.AddObject(&Object{OID: 4, Schema: "public", Name: "pt1", Kind: KindPartitionedTable})

	assert.Len(t, g.Tables(), 2)
	assert.Len(t, g.Sequences(), 1)
	assert.Len(t, g.MaterializedViews(), 1)
	assert.Len(t, g.Objects(), 4)
}

// Package schema holds the in-memory catalog graph the rest of the dumper
// operates on: database objects, their columns, foreign keys, and the
// sequences they consume.
package schema

import "fmt"

// Kind identifies the category of a database object. Only these kinds hold
// data that may ever be dumped.
type Kind string

const (
	KindTable            Kind = "table"
	KindPartitionedTable Kind = "partitioned_table"
	KindSequence         Kind = "sequence"
	KindMaterializedView Kind = "materialized_view"
)

// OID is a PostgreSQL object identifier, unique within the catalog.
type OID uint32

// Column describes one column of a table.
type Column struct {
	Name       string
	Type       string
	Generated  string // generated-column expression, empty if not generated
	Sequences  []OID  // sequences consumed via DEFAULT nextval(...)
}

// ForeignKey describes one outbound foreign key constraint.
type ForeignKey struct {
	Name        string
	TableOID    OID
	Columns     []string
	RefTableOID OID
	RefColumns  []string
}

// SelfReferential reports whether the fkey points back at its own table.
func (fk *ForeignKey) SelfReferential() bool {
	return fk.TableOID == fk.RefTableOID
}

// Object is a database object: a table, sequence, or materialized view.
type Object struct {
	OID    OID
	Schema string
	Name   string
	Kind   Kind

	// Extension is the name of the extension that owns this object, empty
	// if it is not extension-owned.
	Extension string
	// ExtCondition is the extension's dump condition: absent (object is not
	// dumpable unless owned by no extension), empty string (dump the whole
	// object), or a SQL predicate.
	ExtConditionSet bool
	ExtCondition    string

	// Columns is only meaningful for table/partitioned-table kinds, in
	// catalog definition order.
	Columns []Column
	// OutboundFKeys is only meaningful for table/partitioned-table kinds.
	OutboundFKeys []*ForeignKey
	// InboundFKeys is the reverse index, populated by Graph.AddForeignKey.
	InboundFKeys []*ForeignKey
}

// QualifiedName returns the "schema"."name" form, unquoted.
func (o *Object) QualifiedName() string {
	return fmt.Sprintf("%s.%s", o.Schema, o.Name)
}

// IsDumpableKind reports whether objects of this kind may ever carry data.
func IsDumpableKind(k Kind) bool {
	switch k {
	case KindTable, KindPartitionedTable, KindSequence, KindMaterializedView:
		return true
	default:
		return false
	}
}

// Dumpable reports whether the object is of a dumpable kind and, if
// extension-owned, has opted in with a dump condition.
func (o *Object) Dumpable() bool {
	if !IsDumpableKind(o.Kind) {
		return false
	}
	if o.Extension != "" && !o.ExtConditionSet {
		return false
	}
	return true
}

// ColumnByName looks up a column by name, nil if absent.
func (o *Object) ColumnByName(name string) *Column {
	for i := range o.Columns {
		if o.Columns[i].Name == name {
			return &o.Columns[i]
		}
	}
	return nil
}

// Graph is the in-memory catalog: every dumpable object, keyed by OID and by
// (schema, name). It is built once by the reader and treated as read-only
// for the remainder of a dump.
type Graph struct {
	byOID  map[OID]*Object
	byName map[string]*Object
	order  []*Object // insertion order, preserved for deterministic emission
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byOID:  make(map[OID]*Object),
		byName: make(map[string]*Object),
	}
}

// AddObject registers an object. It is an error (panic) to add the same OID
// or the same (schema, name) twice — the reader is expected to deduplicate
// before calling this, since (OID, object) and (schema, name) are each 1:1.
func (g *Graph) AddObject(o *Object) {
	if _, ok := g.byOID[o.OID]; ok {
		panic(fmt.Sprintf("schema: duplicate oid %d", o.OID))
	}
	key := o.QualifiedName()
	if _, ok := g.byName[key]; ok {
		panic(fmt.Sprintf("schema: duplicate object %s", key))
	}
	g.byOID[o.OID] = o
	g.byName[key] = o
	g.order = append(g.order, o)
}

// AddForeignKey attaches fk to its owning table's OutboundFKeys and to the
// referenced table's InboundFKeys.
func (g *Graph) AddForeignKey(fk *ForeignKey) {
	if t := g.byOID[fk.TableOID]; t != nil {
		t.OutboundFKeys = append(t.OutboundFKeys, fk)
	}
	if t := g.byOID[fk.RefTableOID]; t != nil {
		t.InboundFKeys = append(t.InboundFKeys, fk)
	}
}

// ByOID looks up an object, nil if absent.
func (g *Graph) ByOID(oid OID) *Object {
	return g.byOID[oid]
}

// ByName looks up an object by "schema"."name", nil if absent.
func (g *Graph) ByName(schema, name string) *Object {
	return g.byName[fmt.Sprintf("%s.%s", schema, name)]
}

// Objects returns every object in insertion order.
func (g *Graph) Objects() []*Object {
	return g.order
}

// Tables returns table and partitioned-table objects, in insertion order.
func (g *Graph) Tables() []*Object {
	var out []*Object
	for _, o := range g.order {
		if o.Kind == KindTable || o.Kind == KindPartitionedTable {
			out = append(out, o)
		}
	}
	return out
}

// Sequences returns sequence objects, in insertion order.
func (g *Graph) Sequences() []*Object {
	var out []*Object
	for _, o := range g.order {
		if o.Kind == KindSequence {
			out = append(out, o)
		}
	}
	return out
}

// MaterializedViews returns materialized-view objects, in insertion order.
func (g *Graph) MaterializedViews() []*Object {
	var out []*Object
	for _, o := range g.order {
		if o.Kind == KindMaterializedView {
			out = append(out, o)
		}
	}
	return out
}

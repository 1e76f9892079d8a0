package querytree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgseldump/pgseldump/internal/schema"
)

func TestQuoteIdentDoublesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteIdent("plain"))
	assert.Equal(t, `"weird""name"`, QuoteIdent(`weird"name`))
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, `"public"."t1"`, QuoteQualified("public", "t1"))
}

func TestMaybeAndCollapsesSingleAndDropsNil(t *testing.T) {
	assert.Nil(t, MaybeAnd())
	assert.Nil(t, MaybeAnd(nil, nil))

	raw := &Raw{SQL: "x = 1"}
	assert.Same(t, Node(raw), MaybeAnd(raw))
	assert.Same(t, Node(raw), MaybeAnd(nil, raw, nil))

	joined := MaybeAnd(raw, &Raw{SQL: "y = 2"})
	and, ok := joined.(*And)
	assert.True(t, ok)
	assert.Len(t, and.Conds, 2)
}

func TestMaybeOrCollapsesSingleAndDropsNil(t *testing.T) {
	raw := &Raw{SQL: "x = 1"}
	assert.Same(t, Node(raw), MaybeOr(nil, raw))

	joined := MaybeOr(raw, &Raw{SQL: "y = 2"}, nil)
	or, ok := joined.(*Or)
	assert.True(t, ok)
	assert.Len(t, or.Conds, 2)
}

func TestRenderSimpleSelectFastPathCopy(t *testing.T) {
	tbl := &schema.Object{Schema: "public", Name: "t1"}
	out := Render(&CopyOut{FastPath: true, Table: tbl, Columns: []string{"id", "data"}})
	assert.Equal(t, `copy "public"."t1" ("id", "data") to stdout`, out)
}

func TestRenderSelectWithWhere(t *testing.T) {
	tbl := &schema.Object{Schema: "public", Name: "t1"}
	sel := &Select{
		Columns: []OutputColumn{{Name: "id"}, {Name: "data", Expr: "'x'"}},
		From:    []*FromEntry{{Table: tbl, Alias: "t0"}},
		Where:   &Raw{SQL: "data <= 'c'"},
	}
	out := Render(sel)
	assert.Contains(t, out, `select "id", ('x')`)
	assert.Contains(t, out, `from only "public"."t1" as "t0"`)
	assert.Contains(t, out, `where data <= 'c'`)
}

func TestRenderExistsWithFkeyJoin(t *testing.T) {
	fk := &schema.ForeignKey{Columns: []string{"parent_id"}, RefColumns: []string{"id"}}
	inner := &Select{
		Columns: []OutputColumn{{Name: "id"}},
		From:    []*FromEntry{{Table: &schema.Object{Schema: "public", Name: "t2"}, Alias: "t1"}},
		Where:   &FkeyJoin{Fkey: fk, From: "t1", To: "t0"},
	}
	out := Render(&Exists{Query: inner})
	assert.Contains(t, out, "exists (")
	assert.Contains(t, out, `(("t1"."parent_id") = ("t0"."id"))`)
}

func TestRenderOrOfExistsNeverEmptyParens(t *testing.T) {
	fk1 := &schema.ForeignKey{Columns: []string{"a"}, RefColumns: []string{"id"}}
	fk2 := &schema.ForeignKey{Columns: []string{"b"}, RefColumns: []string{"id"}}
	e1 := &Exists{Query: &Select{From: []*FromEntry{{Table: &schema.Object{Schema: "p", Name: "r1"}, Alias: "t1"}}, Where: &FkeyJoin{Fkey: fk1, From: "t1", To: "t0"}}}
	e2 := &Exists{Query: &Select{From: []*FromEntry{{Table: &schema.Object{Schema: "p", Name: "r2"}, Alias: "t2"}}, Where: &FkeyJoin{Fkey: fk2, From: "t2", To: "t0"}}}

	combined := MaybeOr(e1, e2)
	out := Render(combined)
	assert.NotContains(t, out, "()")
	assert.Contains(t, out, "or")
}

func TestRenderRecursiveCTE(t *testing.T) {
	tbl := &schema.Object{Schema: "public", Name: "t1"}
	fk := &schema.ForeignKey{Columns: []string{"parent_id"}, RefColumns: []string{"id"}}

	base := &Select{
		Columns: []OutputColumn{{Name: "id"}, {Name: "parent_id"}},
		From:    []*FromEntry{{Table: tbl, Alias: "t0"}},
		Where:   &Raw{SQL: "data = 'e'"},
	}
	recursive := &Select{
		Columns: []OutputColumn{{Name: "id"}, {Name: "parent_id"}},
		From:    []*FromEntry{{Table: tbl, Alias: "t1"}, {Ref: "anc"}},
		Where:   &FkeyJoin{Fkey: fk, From: "t1", To: "anc"},
	}
	cte := &RecursiveCTE{
		Alias:     "anc",
		Base:      base,
		Recursive: recursive,
		Columns:   []OutputColumn{{Name: "id"}, {Name: "parent_id"}},
	}

	out := Render(cte)
	assert.Contains(t, out, `with recursive "anc" as (`)
	assert.Contains(t, out, "union")
	assert.Contains(t, out, `from "anc"`)
	assert.Contains(t, out, `only "public"."t1" as "t1", "anc"`)
}

func TestRenderFromEntryNestedQueryHasNoOnly(t *testing.T) {
	inner := &Select{Columns: []OutputColumn{{Name: "id"}}, From: []*FromEntry{{Table: &schema.Object{Schema: "p", Name: "t"}, Alias: "t0"}}}
	fe := &FromEntry{Query: inner, Alias: "sub"}
	out := Render(fe)
	assert.NotContains(t, out, "only (")
	assert.Contains(t, out, `as "sub"`)
}

func TestRenderSlowPathCopyOut(t *testing.T) {
	sel := &Select{
		Columns: []OutputColumn{{Name: "id"}},
		From:    []*FromEntry{{Table: &schema.Object{Schema: "public", Name: "t1"}, Alias: "t0"}},
	}
	out := Render(&CopyOut{Query: sel})
	assert.Contains(t, out, "copy (")
	assert.Contains(t, out, "to stdout")
}

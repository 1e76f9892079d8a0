// Package querytree implements the tagged-variant query node tree used to
// describe a selective-dump SELECT, and the visitor that renders it to
// safely-quoted SQL text.
package querytree

import "github.com/pgseldump/pgseldump/internal/schema"

// Node is implemented by every query-tree node kind. It exists purely to
// give the tree a closed, documented membership; rendering dispatches on
// the concrete type via a type switch, not a virtual method, per the
// visitor-over-class-hierarchy design.
type Node interface {
	node()
}

// OutputColumn is one column of a Select's column list: either the quoted
// column identifier, or, when the rule's `replace` map names it, a raw SQL
// expression wrapped in parentheses.
type OutputColumn struct {
	// Name is the column name, used when Expr is empty.
	Name string
	// Expr is a raw SQL expression substituted for the column (from
	// `replace`); embedded verbatim, never quoted.
	Expr string
}

func (OutputColumn) node() {}

// Select is a `select <columns> from <from-list> where <where>` query. Most
// selects have exactly one From entry; the recursive term of a
// self-referential closure has two (the table and the CTE working table),
// joined implicitly by a FkeyJoin predicate in Where.
type Select struct {
	Columns []OutputColumn
	From    []*FromEntry
	Where   Node // nil if unconditional
}

func (*Select) node() {}

// RecursiveCTE wraps a self-referential closure: `with recursive <alias> as
// (<base> union <recursive>) select * from <alias>`.
type RecursiveCTE struct {
	// Alias is the CTE's name (the alias the non-recursive term was built
	// under plus a "_closure" suffix, e.g. "t0_closure").
	Alias string
	// Base is the non-recursive term (the already-built Select for the
	// table, with its own alias/where).
	Base *Select
	// Recursive is the recursive term: re-selects from the table, joined
	// back to the CTE through the self-referential fkey(s).
	Recursive *Select
	// Columns is the outer `select <columns> from <alias>` column list,
	// mirroring Base.Columns.
	Columns []OutputColumn
}

func (*RecursiveCTE) node() {}

// FromEntry names one `from`-list source: a table (rendered with `only`, a
// PostgreSQL partition-scope qualifier), a nested query, or a bare
// reference to an already-declared alias (used by a recursive CTE's
// recursive term to rejoin its own working table), with an optional alias.
type FromEntry struct {
	Table *schema.Object // non-nil for a bare-table source
	Query Node           // non-nil for a nested-query source
	Ref   string         // non-empty to reference an existing alias/CTE name
	Alias string
}

func (*FromEntry) node() {}

// Exists is `exists (<query>)`.
type Exists struct {
	Query Node
}

func (*Exists) node() {}

// And is a parenthesized conjunction of conditions.
type And struct {
	Conds []Node
}

func (*And) node() {}

// Or is a parenthesized disjunction of conditions.
type Or struct {
	Conds []Node
}

func (*Or) node() {}

// FkeyJoin renders the fkey-equality predicate `((from.c1,..) = (to.c1,..))`
// tying a referrer's local columns to the referenced alias's columns.
type FkeyJoin struct {
	Fkey *schema.ForeignKey
	From string // alias of the referencing table
	To   string // alias of the referenced table
}

func (*FkeyJoin) node() {}

// Raw embeds a verbatim SQL fragment (a `filter`/`extcondition` string, or
// an already-stripped predicate) without any quoting or reformatting.
type Raw struct {
	SQL string
}

func (*Raw) node() {}

// CopyOut wraps a query for `copy (<query>) to stdout`, or, on the fast
// path, a bare table+column list for `copy <table> (<cols>) to stdout`.
type CopyOut struct {
	// FastPath, when true, ignores Query and renders directly from Table
	// and Columns.
	FastPath bool
	Table    *schema.Object
	Columns  []string
	Query    Node
}

func (*CopyOut) node() {}

// MaybeAnd collapses a conjunction: nil if conds is empty, the single
// element unwrapped if there is exactly one, otherwise an *And. Nil entries
// are dropped first so the renderer never emits empty parentheses or
// dangling operators.
func MaybeAnd(conds ...Node) Node {
	return maybeJoin(conds, func(c []Node) Node { return &And{Conds: c} })
}

// MaybeOr is MaybeAnd's disjunctive counterpart.
func MaybeOr(conds ...Node) Node {
	return maybeJoin(conds, func(c []Node) Node { return &Or{Conds: c} })
}

func maybeJoin(conds []Node, wrap func([]Node) Node) Node {
	var kept []Node
	for _, c := range conds {
		if c == nil {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return wrap(kept)
	}
}

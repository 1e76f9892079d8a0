package querytree

import (
	"fmt"
	"strings"
)

// QuoteIdent double-quotes a SQL identifier, doubling any embedded quotes.
// Every schema/table/column/alias name goes through this before it is
// spliced into emitted SQL; it is the sole identifier-quoting primitive.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified renders "schema"."name".
func QuoteQualified(schema, name string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// indentStep is the number of spaces the renderer indents per nesting
// level; cosmetic, but kept stable so emitted SQL is diffable.
const indentStep = 4

// Renderer is a visitor over the query tree producing a safely-quoted SQL
// fragment. It holds no node-specific state beyond the current indent
// level, matching the source's `SqlQueryVisitor`.
type Renderer struct {
	level int
	out   strings.Builder
}

// Render renders node to a SQL string.
func Render(node Node) string {
	r := &Renderer{}
	r.visit(node)
	return r.out.String()
}

func (r *Renderer) indent() { r.level += indentStep }
func (r *Renderer) dedent() { r.level -= indentStep }

func (r *Renderer) newline() string {
	if r.level == 0 {
		return " "
	}
	return "\n" + strings.Repeat(" ", r.level)
}

func (r *Renderer) visit(n Node) {
	switch v := n.(type) {
	case nil:
		// nothing to render
	case *Select:
		r.visitSelect(v)
	case *RecursiveCTE:
		r.visitRecursiveCTE(v)
	case *FromEntry:
		r.visitFromEntry(v)
	case *Exists:
		r.visitExists(v)
	case *And:
		r.visitAndOr(v.Conds, "and")
	case *Or:
		r.visitAndOr(v.Conds, "or")
	case *FkeyJoin:
		r.visitFkeyJoin(v)
	case *Raw:
		r.out.WriteString(v.SQL)
	case *CopyOut:
		r.visitCopyOut(v)
	default:
		panic(fmt.Sprintf("querytree: unhandled node %T", n))
	}
}

func renderColumns(cols []OutputColumn) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if c.Expr != "" {
			parts[i] = "(" + c.Expr + ")"
		} else {
			parts[i] = QuoteIdent(c.Name)
		}
	}
	return strings.Join(parts, ", ")
}

func (r *Renderer) visitSelect(s *Select) {
	r.out.WriteString(r.newline())
	r.out.WriteString("select")
	r.out.WriteString(" ")
	r.out.WriteString(renderColumns(s.Columns))
	r.out.WriteString(r.newline())
	r.out.WriteString("from")
	r.out.WriteString(" ")
	for i, f := range s.From {
		if i > 0 {
			r.out.WriteString(", ")
		}
		r.visitFromEntry(f)
	}
	if s.Where != nil {
		r.out.WriteString(r.newline())
		r.out.WriteString("where")
		r.out.WriteString(" ")
		r.visit(s.Where)
	}
}

func (r *Renderer) visitRecursiveCTE(c *RecursiveCTE) {
	r.out.WriteString("with recursive ")
	r.out.WriteString(QuoteIdent(c.Alias))
	r.out.WriteString(" as (")
	r.indent()
	r.visit(c.Base)
	r.out.WriteString(r.newline())
	r.out.WriteString("union")
	r.visit(c.Recursive)
	r.dedent()
	r.out.WriteString(r.newline())
	r.out.WriteString(") select ")
	r.out.WriteString(renderColumns(c.Columns))
	r.out.WriteString(" from ")
	r.out.WriteString(QuoteIdent(c.Alias))
}

func (r *Renderer) visitFromEntry(f *FromEntry) {
	switch {
	case f.Table != nil:
		r.out.WriteString("only ")
		r.out.WriteString(QuoteQualified(f.Table.Schema, f.Table.Name))
	case f.Query != nil:
		r.out.WriteString("(")
		r.indent()
		r.visit(f.Query)
		r.dedent()
		r.out.WriteString(r.newline())
		r.out.WriteString(")")
	case f.Ref != "":
		r.out.WriteString(QuoteIdent(f.Ref))
	default:
		panic("querytree: FromEntry with neither Table, Query, nor Ref set")
	}

	if f.Alias != "" {
		r.out.WriteString(" as ")
		r.out.WriteString(QuoteIdent(f.Alias))
	}
}

func (r *Renderer) visitExists(e *Exists) {
	r.out.WriteString("exists (")
	r.indent()
	r.visit(e.Query)
	r.dedent()
	r.out.WriteString(r.newline())
	r.out.WriteString(")")
}

func (r *Renderer) visitAndOr(conds []Node, kw string) {
	r.out.WriteString("(")
	r.indent()
	for i, c := range conds {
		if i > 0 {
			r.out.WriteString(r.newline())
			r.out.WriteString(kw)
			r.out.WriteString(" ")
		} else {
			r.out.WriteString(r.newline())
		}
		r.visit(c)
	}
	r.dedent()
	r.out.WriteString(r.newline())
	r.out.WriteString(")")
}

func (r *Renderer) visitFkeyJoin(j *FkeyJoin) {
	lhs := make([]string, len(j.Fkey.Columns))
	rhs := make([]string, len(j.Fkey.RefColumns))
	for i, c := range j.Fkey.Columns {
		lhs[i] = QuoteQualified(j.From, c)
	}
	for i, c := range j.Fkey.RefColumns {
		rhs[i] = QuoteQualified(j.To, c)
	}
	r.out.WriteString("((")
	r.out.WriteString(strings.Join(lhs, ", "))
	r.out.WriteString(") = (")
	r.out.WriteString(strings.Join(rhs, ", "))
	r.out.WriteString("))")
}

func (r *Renderer) visitCopyOut(c *CopyOut) {
	if c.FastPath {
		cols := make([]string, len(c.Columns))
		for i, name := range c.Columns {
			cols[i] = QuoteIdent(name)
		}
		r.out.WriteString(fmt.Sprintf(
			"copy %s (%s) to stdout",
			QuoteQualified(c.Table.Schema, c.Table.Name),
			strings.Join(cols, ", "),
		))
		return
	}

	r.out.WriteString("copy (")
	r.indent()
	r.visit(c.Query)
	r.dedent()
	r.out.WriteString(r.newline())
	r.out.WriteString(") to stdout")
}

// Package planner implements the Statement Generator (spec §4.3): for each
// table whose final action is `dump` or `ref`, it validates the rule
// options, decides between the fast COPY path and the slow
// query-tree-driven path, and renders both the import and export
// statements.
package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pgseldump/pgseldump/internal/match"
	"github.com/pgseldump/pgseldump/internal/querytree"
	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// extConditionWhere strips a leading "where" clause (tolerating leading SQL
// comments and any casing) from an extension's dump condition, per spec
// §9's flagged open question. This is a deliberate, documented improvement
// over a bare `(?i)^\s*where\s+` substitution: it also tolerates a leading
// `--` comment line before the `where` keyword.
var extConditionWhere = regexp.MustCompile(`(?is)^\s*(--[^\n]*\n\s*)*where\s+`)

// Warnings collects non-fatal planner warnings (e.g. a cycle break),
// separate from match.Match.Errors, which are fatal.
type Warnings struct {
	Messages []string
}

func (w *Warnings) add(format string, args ...interface{}) {
	w.Messages = append(w.Messages, fmt.Sprintf(format, args...))
}

// Generate runs the Statement Generator over every table in graph whose
// Match is `dump` or `ref`, filling in each Match's ImportStatement and
// ExportStatement (or recording errors on it). Returns accumulated
// non-fatal warnings.
func Generate(graph *schema.Graph, set *match.Set) *Warnings {
	warnings := &Warnings{}

	for _, tbl := range graph.Tables() {
		m := set.Get(tbl.OID)
		if m == nil {
			continue
		}
		if m.Action != rules.ActionDump && m.Action != rules.ActionRef {
			continue
		}

		generateTable(tbl, m, set, warnings)
	}

	return warnings
}

func generateTable(tbl *schema.Object, m *match.Match, set *match.Set, warnings *Warnings) {
	if len(tbl.Columns) == 0 {
		m.Action = rules.ActionSkip
		return
	}

	kept, err := validateAndFilterColumns(tbl, m)
	if err != nil {
		m.AddError(err.Error())
		return
	}

	m.ImportStatement = importStatement(tbl, kept)

	if fastPathEligible(tbl, m) {
		m.ExportStatement = querytree.Render(&querytree.CopyOut{
			FastPath: true,
			Table:    tbl,
			Columns:  columnNames(kept),
		})
		return
	}

	g := &generatorState{set: set, warnings: warnings, path: make(map[schema.OID]bool)}
	query := g.buildTableQuery(tbl, m)
	m.ExportStatement = querytree.Render(&querytree.CopyOut{Query: query})
}

// validateAndFilterColumns checks every no_columns/replace entry against
// the table's real columns and returns the columns to keep, in definition
// order, minus no_columns.
func validateAndFilterColumns(tbl *schema.Object, m *match.Match) ([]schema.Column, error) {
	for _, name := range m.NoColumns {
		if tbl.ColumnByName(name) == nil {
			return nil, fmt.Errorf(
				"table %s has no attribute %q mentioned in 'no_columns'", tbl.QualifiedName(), name,
			)
		}
	}
	for name := range m.Replace {
		if tbl.ColumnByName(name) == nil {
			return nil, fmt.Errorf(
				"table %s has no attribute %q mentioned in 'replace'", tbl.QualifiedName(), name,
			)
		}
	}

	var kept []schema.Column
	for _, col := range tbl.Columns {
		if containsName(m.NoColumns, col.Name) {
			continue
		}
		kept = append(kept, col)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf(
			"table %s: 'no_columns' omits every column; skip the table instead", tbl.QualifiedName(),
		)
	}

	return kept, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func columnNames(cols []schema.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func importStatement(tbl *schema.Object, kept []schema.Column) string {
	cols := make([]string, len(kept))
	for i, c := range kept {
		cols[i] = querytree.QuoteIdent(c.Name)
	}
	return fmt.Sprintf(
		"copy %s (%s) from stdin;",
		querytree.QuoteQualified(tbl.Schema, tbl.Name),
		strings.Join(cols, ", "),
	)
}

// fastPathEligible reports whether a bare `copy <table> (<cols>) to
// stdout` suffices: action `dump`, and none of replace/filter/extcondition/
// inbound referrers apply.
func fastPathEligible(tbl *schema.Object, m *match.Match) bool {
	if m.Action != rules.ActionDump {
		return false
	}
	if len(m.Replace) > 0 {
		return false
	}
	if strings.TrimSpace(m.Filter) != "" {
		return false
	}
	if tbl.ExtConditionSet && tbl.ExtCondition != "" {
		return false
	}
	if len(m.Referrers) > 0 {
		return false
	}
	return true
}

type generatorState struct {
	set      *match.Set
	warnings *Warnings
	aliasN   int
	path     map[schema.OID]bool
}

func (g *generatorState) nextAlias() string {
	a := fmt.Sprintf("t%d", g.aliasN)
	g.aliasN++
	return a
}

// buildTableQuery is the entry point for one top-level table: it resets the
// alias sequence, builds the base select, and wraps it in a recursive CTE
// when the table has self-referential fkeys and the built where-clause is
// non-nil (Open Question decision: covers both an actual `ref` action and a
// `dump` action carrying a filter/extcondition; see DESIGN.md).
func (g *generatorState) buildTableQuery(tbl *schema.Object, m *match.Match) querytree.Node {
	g.aliasN = 0
	alias := g.nextAlias()

	sel := g.buildSelect(tbl, m, alias, nil)

	selfRefFkeys := selfReferentialFkeys(tbl)
	if len(selfRefFkeys) == 0 || sel.Where == nil {
		return sel
	}

	return g.wrapRecursiveCTE(tbl, sel, alias, selfRefFkeys)
}

// buildSelect builds the SELECT for tbl under m, combining extcondition,
// the rule's filter, an optional extra join condition (used when this
// select sits inside a referrer's EXISTS subquery), and — for a `ref`
// table — the disjunction of EXISTS subqueries over non-self-referential
// referrers.
func (g *generatorState) buildSelect(tbl *schema.Object, m *match.Match, alias string, joinCond querytree.Node) *querytree.Select {
	kept, err := validateAndFilterColumns(tbl, m)
	var cols []querytree.OutputColumn
	if err == nil {
		cols = outputColumns(kept, m)
	}

	var extCond querytree.Node
	if tbl.ExtConditionSet && tbl.ExtCondition != "" {
		extCond = &querytree.Raw{SQL: extConditionWhere.ReplaceAllString(tbl.ExtCondition, "")}
	}

	var filterCond querytree.Node
	if f := strings.TrimSpace(m.Filter); f != "" {
		filterCond = &querytree.Raw{SQL: f}
	}

	var refCond querytree.Node
	if m.Action == rules.ActionRef {
		refCond = g.buildReferrerDisjunction(m, alias)
	}

	return &querytree.Select{
		Columns: cols,
		From:    []*querytree.FromEntry{{Table: tbl, Alias: alias}},
		Where:   querytree.MaybeAnd(extCond, filterCond, joinCond, refCond),
	}
}

func outputColumns(kept []schema.Column, m *match.Match) []querytree.OutputColumn {
	cols := make([]querytree.OutputColumn, len(kept))
	for i, c := range kept {
		if expr, ok := m.Replace[c.Name]; ok {
			cols[i] = querytree.OutputColumn{Expr: expr}
		} else {
			cols[i] = querytree.OutputColumn{Name: c.Name}
		}
	}
	return cols
}

func (g *generatorState) buildReferrerDisjunction(m *match.Match, parentAlias string) querytree.Node {
	var exists []querytree.Node
	for _, fk := range m.Referrers {
		if fk.SelfReferential() {
			continue
		}
		e := g.buildExistsForReferrer(fk, parentAlias)
		if e != nil {
			exists = append(exists, e)
		}
	}
	return querytree.MaybeOr(exists...)
}

func (g *generatorState) buildExistsForReferrer(fk *schema.ForeignKey, parentAlias string) querytree.Node {
	referencing := g.set.Get(fk.TableOID)
	if referencing == nil {
		return nil
	}

	if g.path[fk.TableOID] {
		g.warnings.add(
			"cycle detected re-entering %s while building EXISTS closure: branch omitted",
			referencing.Object.QualifiedName(),
		)
		return nil
	}

	g.path[fk.TableOID] = true
	defer delete(g.path, fk.TableOID)

	childAlias := g.nextAlias()
	joinCond := &querytree.FkeyJoin{Fkey: fk, From: childAlias, To: parentAlias}
	childSelect := g.buildSelect(referencing.Object, referencing, childAlias, joinCond)

	return &querytree.Exists{Query: childSelect}
}

func selfReferentialFkeys(tbl *schema.Object) []*schema.ForeignKey {
	var out []*schema.ForeignKey
	for _, fk := range tbl.OutboundFKeys {
		if fk.SelfReferential() {
			out = append(out, fk)
		}
	}
	return out
}

// wrapRecursiveCTE builds the recursive CTE for a self-referential table:
// the non-recursive term is base (already aliased baseAlias); the
// recursive term re-selects the table joined back to the CTE through the
// disjunction of every self-referential fkey, adding the rows that rows
// already in the CTE reference (their ancestors). Its plain columns are
// qualified with the recursive term's alias, since the CTE has the same
// column names.
func (g *generatorState) wrapRecursiveCTE(tbl *schema.Object, base *querytree.Select, baseAlias string, selfFkeys []*schema.ForeignKey) *querytree.RecursiveCTE {
	cteAlias := baseAlias + "_closure"
	recAlias := g.nextAlias()

	var joins []querytree.Node
	for _, fk := range selfFkeys {
		joins = append(joins, &querytree.FkeyJoin{Fkey: fk, From: cteAlias, To: recAlias})
	}

	cols := base.Columns
	recCols := make([]querytree.OutputColumn, len(cols))
	for i, c := range cols {
		recCols[i] = c
		if c.Expr == "" {
			recCols[i] = querytree.OutputColumn{Expr: querytree.QuoteQualified(recAlias, c.Name)}
		}
	}
	recursive := &querytree.Select{
		Columns: recCols,
		From: []*querytree.FromEntry{
			{Table: tbl, Alias: recAlias},
			{Ref: cteAlias},
		},
		Where: querytree.MaybeOr(joins...),
	}

	return &querytree.RecursiveCTE{
		Alias:     cteAlias,
		Base:      base,
		Recursive: recursive,
		Columns:   cols,
	}
}

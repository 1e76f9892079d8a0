// Package orchestrator drives the dump state machine: load schema, add
// rule sets, match, propagate, generate, then emit (spec §4.5).
package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/palantir/stacktrace"

	"github.com/pgseldump/pgseldump/internal/match"
	"github.com/pgseldump/pgseldump/internal/planner"
	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
	"github.com/pgseldump/pgseldump/internal/writer"
)

// State is one state of the Dump Orchestrator's state machine.
type State int

const (
	StateEmpty State = iota
	StateConfigured
	StatePlanned
	StateEmitting
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateConfigured:
		return "configured"
	case StatePlanned:
		return "planned"
	case StateEmitting:
		return "emitting"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Reader is the schema/data source contract (spec §6.1).
type Reader interface {
	LoadSchema(ctx context.Context) (*schema.Graph, error)
	SequenceValue(ctx context.Context, seq *schema.Object) (int64, error)
	Copy(ctx context.Context, sql string, sink io.Writer) error
}

// Orchestrator runs the EMPTY → CONFIGURED → PLANNED → EMITTING → DONE
// state machine described in spec §4.5. A wrong-state call is a
// programmer error and panics, matching the way this sequencing is
// enforced by direct method calls in the source this is ported from.
type Orchestrator struct {
	reader Reader

	state State
	graph *schema.Graph
	rules []*rules.Rule

	set      *match.Set
	warnings *planner.Warnings
}

// New creates an orchestrator in state EMPTY, reading from r.
func New(r Reader) *Orchestrator {
	return &Orchestrator{reader: r, state: StateEmpty}
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	return o.state
}

// LoadSchema transitions EMPTY → CONFIGURED: the schema is read from the
// database. Additional rule sets may still be added afterward.
func (o *Orchestrator) LoadSchema(ctx context.Context) error {
	if o.state != StateEmpty {
		panic(fmt.Sprintf("orchestrator: LoadSchema called in state %s", o.state))
	}

	graph, err := o.reader.LoadSchema(ctx)
	if err != nil {
		return stacktrace.Propagate(err, "failed to load schema")
	}
	o.graph = graph
	o.state = StateConfigured
	return nil
}

// AddRules appends a rule set. Every rule set added this way is pooled
// together; precedence across all of them is by score, never by
// insertion order (spec §4.5).
func (o *Orchestrator) AddRules(rs []*rules.Rule) {
	if o.state != StateConfigured {
		panic(fmt.Sprintf("orchestrator: AddRules called in state %s", o.state))
	}
	o.rules = append(o.rules, rs...)
}

// Plan transitions CONFIGURED → PLANNED: it runs the Rule Matcher, both
// dependency-propagation passes, and the Statement Generator. If any
// Match carries errors, it transitions to ERRORED and returns all of them
// joined into a single error, matching the source's all-errors-before-abort
// reporting style.
func (o *Orchestrator) Plan() error {
	if o.state != StateConfigured {
		panic(fmt.Sprintf("orchestrator: Plan called in state %s", o.state))
	}

	matcher := rules.NewMatcher()
	matcher.AddRules(o.rules)

	set, err := match.InitialMatches(o.graph, matcher)
	if err != nil {
		o.state = StateErrored
		return stacktrace.Propagate(err, "failed to compute initial matches")
	}

	match.PropagateForeignKeys(o.graph, set)
	match.PropagateSequences(o.graph, set)

	o.warnings = planner.Generate(o.graph, set)

	if errs := set.Errors(); len(errs) > 0 {
		o.state = StateErrored
		return stacktrace.NewError("%d object(s) failed validation:\n%s", len(errs), joinErrors(errs))
	}

	o.set = set
	o.state = StatePlanned
	return nil
}

// Warnings returns the non-fatal warnings accumulated during Plan (e.g.
// EXISTS-closure cycles that were omitted rather than followed).
func (o *Orchestrator) Warnings() []string {
	if o.warnings == nil {
		return nil
	}
	return o.warnings.Messages
}

// Emit transitions PLANNED → EMITTING → DONE: it drives w through
// BeginDump, one dump call per dumpable object in fixed kind order
// (tables, then sequences, then materialised views, insertion order
// within each kind), then EndDump.
//
// TODO: materialised views are emitted in Schema Graph insertion order,
// not dependency order; a view that depends on another view dumped later
// will refresh against stale data.
func (o *Orchestrator) Emit(ctx context.Context, w writer.Writer) error {
	if o.state != StatePlanned {
		panic(fmt.Sprintf("orchestrator: Emit called in state %s", o.state))
	}
	o.state = StateEmitting

	if err := w.BeginDump(); err != nil {
		o.state = StateErrored
		return stacktrace.Propagate(err, "failed to begin dump")
	}

	for _, tbl := range o.graph.Tables() {
		if err := o.emitTable(ctx, tbl, w); err != nil {
			o.state = StateErrored
			return err
		}
	}
	for _, seq := range o.graph.Sequences() {
		if err := o.emitSequence(ctx, seq, w); err != nil {
			o.state = StateErrored
			return err
		}
	}
	for _, mv := range o.graph.MaterializedViews() {
		if err := o.emitMaterializedView(mv, w); err != nil {
			o.state = StateErrored
			return err
		}
	}

	if err := w.EndDump(); err != nil {
		o.state = StateErrored
		return stacktrace.Propagate(err, "failed to end dump")
	}
	if err := w.Close(); err != nil {
		o.state = StateErrored
		return stacktrace.Propagate(err, "failed to close writer")
	}

	o.state = StateDone
	return nil
}

func (o *Orchestrator) emitTable(ctx context.Context, tbl *schema.Object, w writer.Writer) error {
	m := o.set.Get(tbl.OID)
	if m == nil || !dispatchable(m.Action) {
		return nil
	}

	copyFn := func(sink io.Writer) error {
		return o.reader.Copy(ctx, m.ExportStatement, sink)
	}
	if err := w.DumpTable(tbl, m.ImportStatement, copyFn); err != nil {
		return stacktrace.Propagate(err, "failed to dump table %s", tbl.QualifiedName())
	}
	return nil
}

func (o *Orchestrator) emitSequence(ctx context.Context, seq *schema.Object, w writer.Writer) error {
	m := o.set.Get(seq.OID)
	if m == nil || !dispatchable(m.Action) {
		return nil
	}

	value, err := o.reader.SequenceValue(ctx, seq)
	if err != nil {
		return stacktrace.Propagate(err, "failed to read sequence value for %s", seq.QualifiedName())
	}
	if err := w.DumpSequence(seq, value); err != nil {
		return stacktrace.Propagate(err, "failed to dump sequence %s", seq.QualifiedName())
	}
	return nil
}

func (o *Orchestrator) emitMaterializedView(mv *schema.Object, w writer.Writer) error {
	m := o.set.Get(mv.OID)
	if m == nil || !dispatchable(m.Action) {
		return nil
	}
	if err := w.DumpMaterializedView(mv); err != nil {
		return stacktrace.Propagate(err, "failed to dump materialized view %s", mv.QualifiedName())
	}
	return nil
}

// dispatchable reports whether a final action reaches the writer: dump and
// ref both do (the statement generator already built the right query for
// each); unknown and skip are logged and skipped (spec §4.5's action→
// dispatch table).
func dispatchable(a rules.Action) bool {
	return a == rules.ActionDump || a == rules.ActionRef
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "\n"
		}
		out += "  " + e
	}
	return out
}

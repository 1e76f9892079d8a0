// Package writer implements the Writer contract (spec §6.2): consuming
// planned matches and emitting SQL text, including the raw streamed COPY
// payload.
package writer

import (
	"fmt"
	"io"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/pgseldump/pgseldump/internal/log"
	"github.com/pgseldump/pgseldump/internal/querytree"
	"github.com/pgseldump/pgseldump/internal/schema"
)

const (
	projectURL = "https://github.com/pgseldump/pgseldump"
	version    = "0.1.0"
)

// CopyFunc streams a table or ref-query's row data into w; supplied by the
// orchestrator, which owns the Reader, so this package never depends on
// how rows are actually fetched.
type CopyFunc func(w io.Writer) error

// Writer is the destination of a dump: real output or a dry-run stand-in.
// Its methods are called in exactly the lifecycle spec.md §6.2 describes:
// BeginDump, then a DumpTable/DumpSequence/DumpMaterializedView per
// object, then EndDump, then Close.
type Writer interface {
	BeginDump() error
	EndDump() error
	DumpTable(tbl *schema.Object, importStatement string, copyFn CopyFunc) error
	DumpSequence(seq *schema.Object, value int64) error
	DumpMaterializedView(mv *schema.Object) error
	Close() error
}

// Real is the production Writer: it emits actual SQL text (including the
// framing `alter table ... disable/enable trigger all`, the import header,
// and `\.` trailer) to an underlying io.Writer.
type Real struct {
	out       io.Writer
	startTime time.Time
}

// New wraps out as a Real writer. If out implements io.Seeker, DumpTable
// additionally annotates each table with a byte-count comment.
func New(out io.Writer) *Real {
	return &Real{out: out}
}

func (w *Real) write(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(w.out, format, args...)
	if err != nil {
		return stacktrace.Propagate(err, "failed to write dump output")
	}
	return nil
}

// BeginDump emits the banner comment and sets session authorization to
// default, so a restore never silently runs as a superuser.
func (w *Real) BeginDump() error {
	w.startTime = time.Now().UTC()

	if err := w.write("-- PostgreSQL data dump generated by pgseldump %s\n", version); err != nil {
		return err
	}
	if err := w.write("-- %s\n\n", projectURL); err != nil {
		return err
	}
	if err := w.write("-- Data dump started at %sZ\n\n", w.startTime.Format("2006-01-02T15:04:05")); err != nil {
		return err
	}
	return w.write("set session authorization default;\n")
}

// EndDump runs a final analyze and emits the closing timestamp comment and
// the vim modeline that suppresses syntax highlighting of the generated
// SQL.
func (w *Real) EndDump() error {
	if err := w.write("\n\nanalyze;\n\n"); err != nil {
		return err
	}

	now := time.Now().UTC()
	elapsed := prettyTimedelta(now.Sub(w.startTime))
	if err := w.write("-- Data dump finished at %sZ (%s)\n\n", now.Format("2006-01-02T15:04:05"), elapsed); err != nil {
		return err
	}
	return w.write("-- vim: set filetype=:\n")
}

// DumpTable disables triggers, writes the import header, streams the row
// data via copyFn, writes the COPY terminator, then re-enables triggers.
// When the underlying sink is seekable, the byte count written by copyFn
// is annotated as a trailing comment.
func (w *Real) DumpTable(tbl *schema.Object, importStatement string, copyFn CopyFunc) error {
	qualified := querytree.QuoteQualified(tbl.Schema, tbl.Name)

	if err := w.write("\nalter table %s disable trigger all;\n", qualified); err != nil {
		return err
	}
	if err := w.write("\n%s\n", importStatement); err != nil {
		return err
	}

	size, err := w.copyWithSizeTracking(copyFn)
	if err != nil {
		return stacktrace.Propagate(err, "failed to copy table %s", tbl.QualifiedName())
	}

	if err := w.write("\\.\n"); err != nil {
		return err
	}
	if err := w.write("\nalter table %s enable trigger all;\n\n", qualified); err != nil {
		return err
	}

	if size >= 0 {
		pretty := ""
		if size >= 1024 {
			pretty = fmt.Sprintf(" (%s)", prettySize(size))
		}
		if err := w.write("-- %d bytes written for table %s%s\n\n", size, qualified, pretty); err != nil {
			return err
		}
	}

	log.Debug("dumped table %s", tbl.QualifiedName())
	return nil
}

// copyWithSizeTracking runs copyFn, returning the byte count written when
// the sink is seekable, -1 otherwise (size annotation is optional).
func (w *Real) copyWithSizeTracking(copyFn CopyFunc) (int64, error) {
	seeker, ok := w.out.(io.Seeker)
	if !ok {
		return -1, copyFn(w.out)
	}

	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1, copyFn(w.out)
	}
	if err := copyFn(w.out); err != nil {
		return -1, err
	}
	end, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1, nil
	}
	return end - start, nil
}

// DumpSequence sets the sequence to the value read from the source
// database, so downstream nextval() calls never collide with the dumped
// data.
func (w *Real) DumpSequence(seq *schema.Object, value int64) error {
	qualified := querytree.QuoteQualified(seq.Schema, seq.Name)
	if err := w.write("\nselect pg_catalog.setval('%s', %d, true);\n\n", escapeLiteral(qualified), value); err != nil {
		return err
	}
	log.Debug("dumped sequence %s", seq.QualifiedName())
	return nil
}

// DumpMaterializedView refreshes the view in place; materialized views
// carry no data of their own to COPY.
func (w *Real) DumpMaterializedView(mv *schema.Object) error {
	qualified := querytree.QuoteQualified(mv.Schema, mv.Name)
	if err := w.write("\nrefresh materialized view %s;\n", qualified); err != nil {
		return err
	}
	log.Debug("dumped materialized view %s", mv.QualifiedName())
	return nil
}

// Close is a no-op for Real: the underlying io.Writer's lifecycle is the
// caller's responsibility.
func (w *Real) Close() error {
	return nil
}

func escapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

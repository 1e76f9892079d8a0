package writer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgseldump/pgseldump/internal/schema"
)

// seekableBuffer adapts bytes.Buffer with a Seek that only supports
// io.SeekCurrent, enough to exercise Real's size-tracking path.
type seekableBuffer struct {
	bytes.Buffer
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekCurrent || offset != 0 {
		return 0, errors.New("unsupported seek")
	}
	return int64(s.Len()), nil
}

func TestRealDumpTableFramesWithTriggerToggle(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	tbl := &schema.Object{Schema: "public", Name: "t1"}

	err := w.DumpTable(tbl, `copy "public"."t1" ("id") from stdin;`, func(sink io.Writer) error {
		_, err := sink.Write([]byte("1\n2\n"))
		return err
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `alter table "public"."t1" disable trigger all;`)
	assert.Contains(t, out, `copy "public"."t1" ("id") from stdin;`)
	assert.Contains(t, out, "1\n2\n")
	assert.Contains(t, out, `\.`)
	assert.Contains(t, out, `alter table "public"."t1" enable trigger all;`)
	assert.NotContains(t, out, "bytes written")
}

func TestRealDumpTableAnnotatesSizeWhenSeekable(t *testing.T) {
	buf := &seekableBuffer{}
	w := New(buf)
	tbl := &schema.Object{Schema: "public", Name: "big"}

	payload := bytes.Repeat([]byte("x"), 2000)
	err := w.DumpTable(tbl, "copy stub from stdin;", func(sink io.Writer) error {
		_, err := sink.Write(payload)
		return err
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2000 bytes written for table")
	assert.Contains(t, out, "KiB")
}

func TestRealDumpTablePropagatesCopyError(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	tbl := &schema.Object{Schema: "public", Name: "t1"}

	err := w.DumpTable(tbl, "copy stub from stdin;", func(sink io.Writer) error {
		return errors.New("boom")
	})
	assert.Error(t, err)
}

func TestRealDumpSequenceEmitsSetval(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	seq := &schema.Object{Schema: "public", Name: "t1_id_seq"}

	require.NoError(t, w.DumpSequence(seq, 42))
	assert.Contains(t, buf.String(), `select pg_catalog.setval('"public"."t1_id_seq"', 42, true);`)
}

func TestRealDumpMaterializedViewEmitsRefresh(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	mv := &schema.Object{Schema: "public", Name: "mv1"}

	require.NoError(t, w.DumpMaterializedView(mv))
	assert.Contains(t, buf.String(), `refresh materialized view "public"."mv1";`)
}

func TestRealBeginEndDumpBracketsOutput(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	require.NoError(t, w.BeginDump())
	require.NoError(t, w.EndDump())

	out := buf.String()
	assert.Contains(t, out, "PostgreSQL data dump generated by pgseldump")
	assert.Contains(t, out, "set session authorization default;")
	assert.Contains(t, out, "analyze;")
	assert.Contains(t, out, "vim: set filetype=:")
}

func TestDummyWriterNeverWrites(t *testing.T) {
	d := NewDummy()
	tbl := &schema.Object{Schema: "public", Name: "t1"}

	called := false
	err := d.DumpTable(tbl, "copy stub;", func(sink io.Writer) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called, "dummy writer must never invoke the copy function")
}

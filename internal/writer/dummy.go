package writer

import (
	"github.com/pgseldump/pgseldump/internal/log"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// Dummy performs logging only, for `--test` runs: it validates that every
// planned object can be reached without ever writing a byte of the dump.
type Dummy struct{}

// NewDummy returns a Dummy writer.
func NewDummy() *Dummy {
	return &Dummy{}
}

func (d *Dummy) BeginDump() error {
	log.Debug("start of dump")
	return nil
}

func (d *Dummy) EndDump() error {
	log.Debug("end of dump")
	return nil
}

func (d *Dummy) DumpTable(tbl *schema.Object, importStatement string, copyFn CopyFunc) error {
	log.Info("would dump table %s", tbl.QualifiedName())
	return nil
}

func (d *Dummy) DumpSequence(seq *schema.Object, value int64) error {
	log.Info("would dump sequence %s", seq.QualifiedName())
	return nil
}

func (d *Dummy) DumpMaterializedView(mv *schema.Object) error {
	log.Info("would dump materialized view %s", mv.QualifiedName())
	return nil
}

func (d *Dummy) Close() error {
	return nil
}

// Package reader implements the Reader contract (spec §6.1): loading the
// Schema Graph from a live PostgreSQL catalog, reading a sequence's current
// value, and streaming `COPY ... TO STDOUT` output into a sink.
package reader

import (
	"context"
	"database/sql"
	"io"
	"regexp"
	"sync"

	"github.com/lib/pq"
	"github.com/palantir/stacktrace"

	"github.com/pgseldump/pgseldump/internal/log"
	"github.com/pgseldump/pgseldump/internal/schema"
)

// Reader connects to a single Postgres database and reads catalog metadata
// and row data from it. It holds at most one connection in active use
// during COPY; catalog queries during LoadSchema may use the pool
// concurrently (see SPEC_FULL.md §5), since they all precede any COPY.
type Reader struct {
	db *sql.DB
}

// New opens a pooled connection to dsn, accepting either a postgres:// URL
// or a libpq keyword/value connection string, following the same
// URL-detection and pool-tuning idiom as the metadata fetcher this package
// is adapted from.
func New(dsn string) (*Reader, error) {
	connStr := dsn
	if matched, _ := regexp.MatchString(`^postgres(ql)?://`, dsn); matched {
		parsed, err := pq.ParseURL(dsn)
		if err != nil {
			return nil, stacktrace.Propagate(err, "failed to parse database URL")
		}
		connStr = parsed
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, stacktrace.Propagate(err, "failed to connect to database")
	}

	log.Info("connected to database for schema read")
	return &Reader{db: db}, nil
}

// Close closes the pooled connection.
func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// catalogObjectRow mirrors one row of the objects query.
type catalogObjectRow struct {
	oid             schema.OID
	objSchema       string
	name            string
	kind            string
	extension       sql.NullString
	extConditionSet bool
	extCondition    string
}

// relkindToKind maps PostgreSQL's single-letter pg_class.relkind to our
// Kind, mirroring pg_seldump's `kinds`/`revkinds` table.
var relkindToKind = map[string]schema.Kind{
	"r": schema.KindTable,
	"p": schema.KindPartitionedTable,
	"S": schema.KindSequence,
	"m": schema.KindMaterializedView,
}

// LoadSchema populates and returns a Schema Graph from the live catalog:
// dumpable objects (filtering out system schemas and non-dumpable relation
// kinds, per §6.1), their columns, foreign keys, and sequence-ownership
// edges.
func (r *Reader) LoadSchema(ctx context.Context) (*schema.Graph, error) {
	graph := schema.NewGraph()

	objRows, err := r.fetchObjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range objRows {
		kind, ok := relkindToKind[row.kind]
		if !ok {
			continue
		}
		obj := &schema.Object{
			OID:             row.oid,
			Schema:          row.objSchema,
			Name:            row.name,
			Kind:            kind,
			ExtConditionSet: row.extConditionSet,
			ExtCondition:    row.extCondition,
		}
		if row.extension.Valid {
			obj.Extension = row.extension.String
		}
		graph.AddObject(obj)
	}

	// Columns and foreign keys only apply to table-kind objects; the three
	// queries below (columns, foreign keys, sequence dependencies) are
	// independent read-only catalog scans and safe to run concurrently over
	// the pooled connection ahead of any COPY.
	var columnErr, fkeyErr, seqErr error
	var columns []columnRow
	var fkeys []fkeyRow
	var seqDeps []seqDepRow

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); columns, columnErr = r.fetchColumns(ctx) }()
	go func() { defer wg.Done(); fkeys, fkeyErr = r.fetchForeignKeys(ctx) }()
	go func() { defer wg.Done(); seqDeps, seqErr = r.fetchSequenceDeps(ctx) }()
	wg.Wait()

	if columnErr != nil {
		return nil, columnErr
	}
	if fkeyErr != nil {
		return nil, fkeyErr
	}
	if seqErr != nil {
		return nil, seqErr
	}

	for _, c := range columns {
		tbl := graph.ByOID(c.tableOID)
		if tbl == nil {
			continue
		}
		tbl.Columns = append(tbl.Columns, schema.Column{
			Name:      c.name,
			Type:      c.typ,
			Generated: c.generated,
		})
	}

	for _, s := range seqDeps {
		tbl := graph.ByOID(s.tableOID)
		if tbl == nil {
			continue
		}
		col := tbl.ColumnByName(s.column)
		if col == nil {
			continue
		}
		col.Sequences = append(col.Sequences, s.seqOID)
	}

	for _, f := range fkeys {
		graph.AddForeignKey(&schema.ForeignKey{
			Name:        f.name,
			TableOID:    f.tableOID,
			Columns:     f.columns,
			RefTableOID: f.refTableOID,
			RefColumns:  f.refColumns,
		})
	}

	return graph, nil
}

// SequenceValue returns the `last_value` of seq.
func (r *Reader) SequenceValue(ctx context.Context, seq *schema.Object) (int64, error) {
	var val int64
	row := r.db.QueryRowContext(ctx,
		`select last_value from `+schemaRef(seq))
	if err := row.Scan(&val); err != nil {
		return 0, stacktrace.Propagate(err, "failed to read last_value of sequence %s", seq.QualifiedName())
	}
	return val, nil
}

// schemaRef renders a double-quoted schema-qualified regclass reference
// suitable for direct SQL interpolation (catalog object names, never
// user-controlled values).
func schemaRef(obj *schema.Object) string {
	return `"` + obj.Schema + `"."` + obj.Name + `"`
}

// Copy runs sql (a `COPY ... TO STDOUT` statement) and streams the raw
// output into sink.
func (r *Reader) Copy(ctx context.Context, sqlText string, sink io.Writer) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return stacktrace.Propagate(err, "failed to acquire connection for copy")
	}
	defer conn.Close()

	var copyErr error
	err = conn.Raw(func(driverConn interface{}) error {
		copier, ok := driverConn.(interface {
			CopyOut(string, io.Writer) error
		})
		if !ok {
			return stacktrace.NewError("driver connection does not support COPY OUT")
		}
		copyErr = copier.CopyOut(sqlText, sink)
		return copyErr
	})
	if err != nil {
		return stacktrace.Propagate(err, "failed to copy: %s", sqlText)
	}
	return nil
}

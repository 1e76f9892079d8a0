package reader

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/palantir/stacktrace"

	"github.com/pgseldump/pgseldump/internal/schema"
)

// fetchObjects mirrors _fetch_objects: every relation of a dumpable kind
// outside the system schemas, plus the extension that owns it (if any) and
// that extension's per-object dump condition.
func (r *Reader) fetchObjects(ctx context.Context) ([]catalogObjectRow, error) {
	rows, err := r.db.QueryContext(ctx, `
select
    r.oid as oid,
    s.nspname as schema,
    r.relname as name,
    r.relkind as kind,
    e.extname as extension,
    (
        select extcondition[row_number]
        from (
            select unnest, row_number() over ()
            from (select unnest(extconfig)) t0
        ) t1
        where unnest = r.oid
    ) as extcondition
from pg_class r
join pg_namespace s on s.oid = r.relnamespace
left join pg_depend d on d.objid = r.oid and d.deptype = 'e'
left join pg_extension e on d.refobjid = e.oid
where r.relkind = any($1)
and s.nspname != 'information_schema'
and s.nspname !~ '^pg_'
order by s.nspname, r.relname
`, pq.Array([]string{"r", "p", "S", "m"}))
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to fetch database objects")
	}
	defer rows.Close()

	var out []catalogObjectRow
	for rows.Next() {
		var row catalogObjectRow
		var extCondition sql.NullString
		if err := rows.Scan(&row.oid, &row.objSchema, &row.name, &row.kind, &row.extension, &extCondition); err != nil {
			return nil, stacktrace.Propagate(err, "failed to scan database object row")
		}
		row.extConditionSet = extCondition.Valid
		row.extCondition = extCondition.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, stacktrace.Propagate(err, "error iterating database object rows")
	}
	return out, nil
}

type columnRow struct {
	tableOID  schema.OID
	name      string
	typ       string
	generated string
}

// fetchColumns mirrors _fetch_columns: every live, non-dropped, non-system
// column of a table or partitioned table, in attnum order.
func (r *Reader) fetchColumns(ctx context.Context) ([]columnRow, error) {
	rows, err := r.db.QueryContext(ctx, `
select
    a.attrelid as table_oid,
    a.attname as name,
    a.atttypid::regtype::text as type,
    coalesce(a.attgenerated, '') as generated
from pg_attribute a
join pg_class r on r.oid = a.attrelid
join pg_namespace s on s.oid = r.relnamespace
where r.relkind = any($1)
and a.attnum > 0
and not a.attisdropped
and s.nspname != 'information_schema'
and s.nspname !~ '^pg_'
order by a.attrelid, a.attnum
`, pq.Array([]string{"r", "p"}))
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to fetch columns")
	}
	defer rows.Close()

	var out []columnRow
	for rows.Next() {
		var row columnRow
		if err := rows.Scan(&row.tableOID, &row.name, &row.typ, &row.generated); err != nil {
			return nil, stacktrace.Propagate(err, "failed to scan column row")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, stacktrace.Propagate(err, "error iterating column rows")
	}
	return out, nil
}

type seqDepRow struct {
	tableOID schema.OID
	column   string
	seqOID   schema.OID
}

// fetchSequenceDeps mirrors _fetch_sequences_deps: every sequence consumed
// by a column's DEFAULT nextval(...), via pg_depend on the column's default
// expression.
func (r *Reader) fetchSequenceDeps(ctx context.Context) ([]seqDepRow, error) {
	rows, err := r.db.QueryContext(ctx, `
select tbl.oid as table_oid, att.attname as column, seq.oid as seq_oid
from pg_depend dep
join pg_attrdef def
    on dep.classid = 'pg_attrdef'::regclass and dep.objid = def.oid
join pg_attribute att on (def.adrelid, def.adnum) = (att.attrelid, att.attnum)
join pg_class tbl on tbl.oid = att.attrelid
join pg_class seq
    on dep.refclassid = 'pg_class'::regclass
    and seq.oid = dep.refobjid
    and seq.relkind = 'S'
`)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to fetch sequence dependencies")
	}
	defer rows.Close()

	var out []seqDepRow
	for rows.Next() {
		var row seqDepRow
		if err := rows.Scan(&row.tableOID, &row.column, &row.seqOID); err != nil {
			return nil, stacktrace.Propagate(err, "failed to scan sequence dependency row")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, stacktrace.Propagate(err, "error iterating sequence dependency rows")
	}
	return out, nil
}

type fkeyRow struct {
	name        string
	tableOID    schema.OID
	columns     []string
	refTableOID schema.OID
	refColumns  []string
}

// fetchForeignKeys has no equivalent in the source this package is
// grounded on (which never needed fkey closure): it reads pg_constraint,
// resolving each side's attnum list to column names via pg_attribute.
func (r *Reader) fetchForeignKeys(ctx context.Context) ([]fkeyRow, error) {
	rows, err := r.db.QueryContext(ctx, `
select
    c.conname,
    c.conrelid as table_oid,
    (
        select array_agg(att.attname order by ord.n)
        from unnest(c.conkey) with ordinality as ord(attnum, n)
        join pg_attribute att on att.attrelid = c.conrelid and att.attnum = ord.attnum
    ) as columns,
    c.confrelid as ref_table_oid,
    (
        select array_agg(att.attname order by ord.n)
        from unnest(c.confkey) with ordinality as ord(attnum, n)
        join pg_attribute att on att.attrelid = c.confrelid and att.attnum = ord.attnum
    ) as ref_columns
from pg_constraint c
where c.contype = 'f'
order by c.conrelid, c.conname
`)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var out []fkeyRow
	for rows.Next() {
		var row fkeyRow
		var cols, refCols []string
		if err := rows.Scan(&row.name, &row.tableOID, pq.Array(&cols), &row.refTableOID, pq.Array(&refCols)); err != nil {
			return nil, stacktrace.Propagate(err, "failed to scan foreign key row")
		}
		row.columns = cols
		row.refColumns = refCols
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, stacktrace.Propagate(err, "error iterating foreign key rows")
	}
	return out, nil
}

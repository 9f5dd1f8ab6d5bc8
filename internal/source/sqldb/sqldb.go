// Package sqldb reads the tables of an existing database as row sources.
//
// It registers the source kinds "postgres", "mssql", "sqlite" and "mysql".
// Only catalog queries and SELECT statements are issued; nothing is written.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"sqlconv/internal/source"
)

// flavor holds the per-engine catalog SQL and quoting.
type flavor struct {
	kind          string
	driver        string
	defaultSchema string

	// listTables takes the schema as its only parameter (sqlite: none).
	listTables string
	// primaryKey takes schema and table (sqlite: table only).
	primaryKey string

	quote func(schema, table string) string
}

var flavors = map[string]flavor{
	"postgres": {
		kind:          "postgres",
		driver:        "pgx",
		defaultSchema: "public",
		listTables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`,
		primaryKey: `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
 AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
ORDER BY kcu.ordinal_position`,
		quote: func(schema, table string) string {
			return pgx.Identifier{schema, table}.Sanitize()
		},
	},
	"mssql": {
		kind:          "mssql",
		driver:        "sqlserver",
		defaultSchema: "dbo",
		listTables: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
ORDER BY TABLE_NAME`,
		primaryKey: `SELECT kcu.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
  ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
 AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
 AND kcu.TABLE_NAME = tc.TABLE_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2
ORDER BY kcu.ORDINAL_POSITION`,
		quote: func(schema, table string) string {
			return bracket(schema) + "." + bracket(table)
		},
	},
	"mysql": {
		kind:   "mysql",
		driver: "mysql",
		listTables: `SELECT TABLE_NAME FROM information_schema.TABLES
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_TYPE = 'BASE TABLE'
ORDER BY TABLE_NAME`,
		primaryKey: `SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
ORDER BY ORDINAL_POSITION`,
		quote: func(schema, table string) string {
			if schema == "" {
				return backtick(table)
			}
			return backtick(schema) + "." + backtick(table)
		},
	},
	"sqlite": {
		kind:   "sqlite",
		driver: "sqlite",
		listTables: `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`,
		primaryKey: `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`,
		quote: func(_, table string) string {
			return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
		},
	},
}

func init() {
	for kind := range flavors {
		source.Register(kind, NewTables)
	}
}

func bracket(s string) string  { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" }
func backtick(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }

// openDB opens and pings a database/sql handle for fl.
func openDB(ctx context.Context, fl flavor, dsn string) (*sql.DB, error) {
	db, err := sql.Open(fl.driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewTables lists the base tables of cfg.Schema (engine default when empty)
// with their primary keys. When cfg.Tables is set only those tables are
// offered, in the given order; naming a table that does not exist is an
// error.
//
// Each Table.Open opens its own connection, released by RowReader.Close.
func NewTables(ctx context.Context, cfg source.Config) ([]source.Table, error) {
	fl, ok := flavors[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("sqldb: unsupported kind %q", cfg.Kind)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqldb: missing dsn")
	}
	schema := cfg.Schema
	if schema == "" {
		schema = fl.defaultSchema
	}

	db, err := openDB(ctx, fl, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	names, err := listTables(ctx, db, fl, schema)
	if err != nil {
		return nil, err
	}
	if len(cfg.Tables) > 0 {
		names, err = selectTables(names, cfg.Tables)
		if err != nil {
			return nil, err
		}
	}

	out := make([]source.Table, 0, len(names))
	for _, name := range names {
		pk, err := primaryKey(ctx, db, fl, schema, name)
		if err != nil {
			return nil, err
		}
		query := "SELECT * FROM " + fl.quote(schema, name)
		dsn := cfg.DSN
		origin := fl.kind + ":" + name
		if schema != "" {
			origin = fl.kind + ":" + schema + "." + name
		}
		out = append(out, source.Table{
			Name:       name,
			Prefix:     cfg.Prefix,
			Origin:     origin,
			PrimaryKey: pk,
			Open: func(ctx context.Context) (source.RowReader, error) {
				return openQuery(ctx, fl, dsn, query)
			},
		})
	}
	return out, nil
}

func listTables(ctx context.Context, db *sql.DB, fl flavor, schema string) ([]string, error) {
	var args []any
	if fl.kind != "sqlite" {
		args = append(args, schema)
	}
	rows, err := db.QueryContext(ctx, fl.listTables, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func primaryKey(ctx context.Context, db *sql.DB, fl flavor, schema, table string) ([]string, error) {
	args := []any{schema, table}
	if fl.kind == "sqlite" {
		args = []any{table}
	}
	rows, err := db.QueryContext(ctx, fl.primaryKey, args...)
	if err != nil {
		return nil, fmt.Errorf("primary key of %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("primary key of %s: %w", table, err)
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// selectTables keeps wanted in order, matching catalog names exactly first
// and case-insensitively second.
func selectTables(catalog, wanted []string) ([]string, error) {
	exact := make(map[string]string, len(catalog))
	folded := make(map[string]string, len(catalog))
	for _, n := range catalog {
		exact[n] = n
		folded[strings.ToLower(n)] = n
	}
	out := make([]string, 0, len(wanted))
	for _, w := range wanted {
		if n, ok := exact[w]; ok {
			out = append(out, n)
			continue
		}
		if n, ok := folded[strings.ToLower(w)]; ok {
			out = append(out, n)
			continue
		}
		return nil, fmt.Errorf("table %q not found", w)
	}
	return out, nil
}

// Reader streams the result of one SELECT.
type Reader struct {
	db   *sql.DB
	rows *sql.Rows
	cols []string
	dest []any
	ptrs []any
}

func openQuery(ctx context.Context, fl flavor, dsn, query string) (*Reader, error) {
	db, err := openDB(ctx, fl, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("query %s: %w", query, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, err
	}
	r := &Reader{db: db, rows: rows, cols: cols, dest: make([]any, len(cols)), ptrs: make([]any, len(cols))}
	for i := range r.dest {
		r.ptrs[i] = &r.dest[i]
	}
	return r, nil
}

func (r *Reader) Columns() []string { return r.cols }

// Next scans one row. Text returned as []byte by the driver becomes string;
// binary data that is not valid UTF-8 stays []byte.
func (r *Reader) Next() ([]any, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	for i := range r.dest {
		r.dest[i] = nil
	}
	if err := r.rows.Scan(r.ptrs...); err != nil {
		return nil, err
	}
	row := make([]any, len(r.dest))
	for i, v := range r.dest {
		row[i] = normalize(v)
	}
	return row, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return append([]byte(nil), x...)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func (r *Reader) Close() error {
	var err error
	if r.rows != nil {
		err = r.rows.Close()
		r.rows = nil
	}
	if r.db != nil {
		if cerr := r.db.Close(); err == nil {
			err = cerr
		}
		r.db = nil
	}
	return err
}

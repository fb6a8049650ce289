package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sqlnerd/internal/logging"
)

// sqliteAdapter serves file-backed (or :memory:) SQLite databases.
// Dialect notes: catalog lives in sqlite_master and PRAGMA calls, identifiers
// are double-quoted, placeholders are '?'.
type sqliteAdapter struct {
	params ConnParams
	db     *sql.DB
}

func newSQLiteAdapter(params ConnParams) *sqliteAdapter {
	return &sqliteAdapter{params: params}
}

func (a *sqliteAdapter) Kind() Kind { return KindSQLite }

func (a *sqliteAdapter) Connect(ctx context.Context) error {
	path := a.params.Database
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return configErr("connect", fmt.Sprintf("sqlite file not found: %s", path))
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return connErr("connect", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		logging.AdapterDebug("sqlite: failed to set busy_timeout: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, a.params.connectTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return connErr("connect", err)
	}
	a.db = db
	logging.Adapter("sqlite: connected to %s", path)
	return nil
}

func (a *sqliteAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *sqliteAdapter) Validate(ctx context.Context) Validation {
	if a.db == nil {
		return Validation{Error: "not connected"}
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return Validation{Error: err.Error()}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Validation{Error: err.Error()}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return Validation{Error: err.Error()}
	}

	v := Validation{Valid: true, TableCount: len(tables)}
	for _, name := range tables {
		if len(v.SampleTables) >= 5 {
			break
		}
		var count int64
		if err := a.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(name))).Scan(&count); err != nil {
			continue
		}
		v.SampleTables = append(v.SampleTables, TableSample{Name: name, RowCount: count})
	}
	if a.params.Database != ":memory:" {
		if fi, err := os.Stat(a.params.Database); err == nil {
			v.SizeEstimate = fi.Size()
		}
	}
	return v
}

func (a *sqliteAdapter) IntrospectSchema(ctx context.Context) (*SchemaSnapshot, error) {
	if a.db == nil {
		return nil, connErr("introspect", fmt.Errorf("not connected"))
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, classifyExec("introspect", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, classifyExec("introspect", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyExec("introspect", err)
	}

	snap := &SchemaSnapshot{Kind: KindSQLite}
	for _, name := range names {
		table := Table{Name: name}

		cols, err := a.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(name)))
		if err != nil {
			return nil, classifyExec("introspect", err)
		}
		for cols.Next() {
			var (
				cid     int
				colName string
				colType string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := cols.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
				cols.Close()
				return nil, classifyExec("introspect", err)
			}
			table.Columns = append(table.Columns, Column{
				Name:       colName,
				Type:       colType,
				Nullable:   notNull == 0,
				PrimaryKey: pk > 0,
			})
		}
		cols.Close()

		fks, err := a.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, quoteIdent(name)))
		if err == nil {
			for fks.Next() {
				var (
					id, seq                 int
					refTable, from, to      string
					onUpdate, onDelete, mat string
				)
				if err := fks.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &mat); err != nil {
					break
				}
				table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
					Column: from, RefTable: refTable, RefColumn: to, Type: "declared",
				})
			}
			fks.Close()
		}

		if err := a.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(name))).Scan(&table.RowCount); err != nil {
			logging.AdapterDebug("sqlite: row count for %s failed: %v", name, err)
		}
		snap.Tables = append(snap.Tables, table)
	}
	snap.InferImplicitKeys()
	return snap, nil
}

func (a *sqliteAdapter) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if a.db == nil {
		return 0, connErr("distinct_count", fmt.Errorf("not connected"))
	}
	var count int64
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column))
	if err := a.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, classifyExec("distinct_count", err)
	}
	return count, nil
}

func (a *sqliteAdapter) SampleColumnValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if a.db == nil {
		return nil, connErr("sample", fmt.Errorf("not connected"))
	}
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column), limit)
	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classifyExec("sample", err)
	}
	defer rows.Close()
	return scanStringColumn(rows)
}

func (a *sqliteAdapter) Execute(ctx context.Context, query string, timeout time.Duration) (*QueryResult, error) {
	if a.db == nil {
		return nil, connErr("execute", fmt.Errorf("not connected"))
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !isReadQuery(query) {
		res, err := a.db.ExecContext(execCtx, query)
		if err != nil {
			return nil, classifyExec("execute", err)
		}
		affected, _ := res.RowsAffected()
		return &QueryResult{RowsAffected: affected}, nil
	}

	rows, err := a.db.QueryContext(execCtx, query)
	if err != nil {
		return nil, classifyExec("execute", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

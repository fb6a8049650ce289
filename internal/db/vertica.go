package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/vertica/vertica-sql-go"

	"sqlnerd/internal/logging"
)

// verticaAdapter serves Vertica over database/sql. Dialect notes: the
// catalog lives in v_catalog (tables/columns views), placeholders are '?',
// and size comes from v_monitor.projection_storage.
type verticaAdapter struct {
	params ConnParams
	db     *sql.DB
}

func newVerticaAdapter(params ConnParams) *verticaAdapter {
	return &verticaAdapter{params: params}
}

func (a *verticaAdapter) Kind() Kind { return KindVertica }

func (a *verticaAdapter) schema() string {
	if a.params.Schema != "" {
		return a.params.Schema
	}
	return "public"
}

func (a *verticaAdapter) dsn() string {
	u := url.URL{
		Scheme: "vertica",
		User:   url.UserPassword(a.params.User, a.params.Password),
		Host:   fmt.Sprintf("%s:%d", a.params.Host, a.params.Port),
		Path:   "/" + a.params.Database,
	}
	return u.String()
}

func (a *verticaAdapter) Connect(ctx context.Context) error {
	if a.params.Host == "" || a.params.Port == 0 {
		return configErr("connect", fmt.Sprintf("connection %q: host and port are required", a.params.Name))
	}
	db, err := sql.Open("vertica", a.dsn())
	if err != nil {
		return configErr("connect", err.Error())
	}
	pingCtx, cancel := context.WithTimeout(ctx, a.params.connectTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return connErr("connect", err)
	}
	a.db = db
	logging.Adapter("vertica: connected to %s/%s", a.params.Host, a.params.Database)
	return nil
}

func (a *verticaAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *verticaAdapter) Validate(ctx context.Context) Validation {
	if a.db == nil {
		return Validation{Error: "not connected"}
	}
	var tableCount int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM v_catalog.tables WHERE table_schema = ?`, a.schema()).Scan(&tableCount)
	if err != nil {
		return Validation{Error: err.Error()}
	}

	v := Validation{Valid: true, TableCount: tableCount}
	if err := a.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(used_bytes), 0) FROM v_monitor.projection_storage
		 WHERE anchor_table_schema = ?`, a.schema()).Scan(&v.SizeEstimate); err != nil {
		logging.AdapterDebug("vertica: size estimate failed: %v", err)
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT anchor_table_name, SUM(row_count)
		 FROM v_monitor.projection_storage
		 WHERE anchor_table_schema = ?
		 GROUP BY anchor_table_name ORDER BY anchor_table_name LIMIT 5`, a.schema())
	if err != nil {
		return v
	}
	defer rows.Close()
	for rows.Next() {
		var ts TableSample
		if err := rows.Scan(&ts.Name, &ts.RowCount); err != nil {
			break
		}
		v.SampleTables = append(v.SampleTables, ts)
	}
	return v
}

func (a *verticaAdapter) IntrospectSchema(ctx context.Context) (*SchemaSnapshot, error) {
	if a.db == nil {
		return nil, connErr("introspect", fmt.Errorf("not connected"))
	}
	snap := &SchemaSnapshot{Kind: KindVertica, Schema: a.schema()}

	rows, err := a.db.QueryContext(ctx,
		`SELECT table_name FROM v_catalog.tables WHERE table_schema = ? ORDER BY table_name`, a.schema())
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

	for _, name := range names {
		table := Table{Name: name}

		colRows, err := a.db.QueryContext(ctx,
			`SELECT column_name, data_type, is_nullable
			 FROM v_catalog.columns
			 WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`,
			a.schema(), name)
		if err != nil {
			return nil, classifyExec("introspect", err)
		}
		for colRows.Next() {
			var colName, dataType string
			var nullable bool
			if err := colRows.Scan(&colName, &dataType, &nullable); err != nil {
				colRows.Close()
				return nil, classifyExec("introspect", err)
			}
			table.Columns = append(table.Columns, Column{
				Name:     colName,
				Type:     dataType,
				Nullable: nullable,
			})
		}
		colRows.Close()

		// Primary keys live in a separate constraint view in Vertica.
		pkRows, err := a.db.QueryContext(ctx,
			`SELECT column_name FROM v_catalog.primary_keys
			 WHERE table_schema = ? AND table_name = ?`, a.schema(), name)
		if err == nil {
			for pkRows.Next() {
				var col string
				if err := pkRows.Scan(&col); err != nil {
					break
				}
				if c, ok := table.Column(col); ok {
					c.PrimaryKey = true
				}
			}
			pkRows.Close()
		}

		fkRows, err := a.db.QueryContext(ctx,
			`SELECT column_name, reference_table_name, reference_column_name
			 FROM v_catalog.foreign_keys
			 WHERE table_schema = ? AND table_name = ?`, a.schema(), name)
		if err == nil {
			for fkRows.Next() {
				var fk ForeignKey
				if err := fkRows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
					break
				}
				fk.Type = "declared"
				table.ForeignKeys = append(table.ForeignKeys, fk)
			}
			fkRows.Close()
		}

		snap.Tables = append(snap.Tables, table)
	}
	snap.InferImplicitKeys()
	return snap, nil
}

func (a *verticaAdapter) qualify(table string) string {
	return quoteIdent(a.schema()) + "." + quoteIdent(table)
}

func (a *verticaAdapter) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if a.db == nil {
		return 0, connErr("distinct_count", fmt.Errorf("not connected"))
	}
	var count int64
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL`,
		quoteIdent(column), a.qualify(table), quoteIdent(column))
	if err := a.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, classifyExec("distinct_count", err)
	}
	return count, nil
}

func (a *verticaAdapter) SampleColumnValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if a.db == nil {
		return nil, connErr("sample", fmt.Errorf("not connected"))
	}
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d`,
		quoteIdent(column), a.qualify(table), quoteIdent(column), limit)
	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classifyExec("sample", err)
	}
	defer rows.Close()
	return scanStringColumn(rows)
}

func (a *verticaAdapter) Execute(ctx context.Context, query string, timeout time.Duration) (*QueryResult, error) {
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

package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sqlnerd/internal/logging"
)

// postgresAdapter serves PostgreSQL over a pgx connection pool.
// Dialect notes: catalog lives in information_schema, placeholders are $N,
// schema qualification defaults to "public".
type postgresAdapter struct {
	params ConnParams
	pool   *pgxpool.Pool
}

func newPostgresAdapter(params ConnParams) *postgresAdapter {
	return &postgresAdapter{params: params}
}

func (a *postgresAdapter) Kind() Kind { return KindPostgres }

func (a *postgresAdapter) schema() string {
	if a.params.Schema != "" {
		return a.params.Schema
	}
	return "public"
}

func (a *postgresAdapter) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(a.params.User, a.params.Password),
		Host:   fmt.Sprintf("%s:%d", a.params.Host, a.params.Port),
		Path:   "/" + a.params.Database,
	}
	q := url.Values{}
	if a.params.SSLMode != "" {
		q.Set("sslmode", a.params.SSLMode)
	}
	q.Set("connect_timeout", fmt.Sprintf("%d", int(a.params.connectTimeout().Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

func (a *postgresAdapter) Connect(ctx context.Context) error {
	if a.params.Host == "" || a.params.Port == 0 {
		return configErr("connect", fmt.Sprintf("connection %q: host and port are required", a.params.Name))
	}
	cfg, err := pgxpool.ParseConfig(a.dsn())
	if err != nil {
		return configErr("connect", err.Error())
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return connErr("connect", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, a.params.connectTimeout())
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return connErr("connect", err)
	}
	a.pool = pool
	logging.Adapter("postgres: connected to %s/%s", a.params.Host, a.params.Database)
	return nil
}

func (a *postgresAdapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

func (a *postgresAdapter) Validate(ctx context.Context) Validation {
	if a.pool == nil {
		return Validation{Error: "not connected"}
	}
	var tableCount int
	err := a.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'`, a.schema()).Scan(&tableCount)
	if err != nil {
		return Validation{Error: err.Error()}
	}

	v := Validation{Valid: true, TableCount: tableCount}
	if err := a.pool.QueryRow(ctx,
		`SELECT pg_database_size(current_database())`).Scan(&v.SizeEstimate); err != nil {
		logging.AdapterDebug("postgres: size estimate failed: %v", err)
	}

	rows, err := a.pool.Query(ctx,
		`SELECT relname, reltuples::bigint FROM pg_class c
		 JOIN pg_namespace n ON n.oid = c.relnamespace
		 WHERE n.nspname = $1 AND c.relkind = 'r'
		 ORDER BY relname LIMIT 5`, a.schema())
	if err != nil {
		return v
	}
	defer rows.Close()
	for rows.Next() {
		var ts TableSample
		if err := rows.Scan(&ts.Name, &ts.RowCount); err != nil {
			break
		}
		if ts.RowCount < 0 {
			ts.RowCount = 0 // never analyzed
		}
		v.SampleTables = append(v.SampleTables, ts)
	}
	return v
}

func (a *postgresAdapter) IntrospectSchema(ctx context.Context) (*SchemaSnapshot, error) {
	if a.pool == nil {
		return nil, connErr("introspect", fmt.Errorf("not connected"))
	}
	snap := &SchemaSnapshot{Kind: KindPostgres, Schema: a.schema()}

	rows, err := a.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`, a.schema())
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

		pks := map[string]bool{}
		pkRows, err := a.pool.Query(ctx,
			`SELECT kcu.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu
			   ON tc.constraint_name = kcu.constraint_name
			  AND tc.table_schema = kcu.table_schema
			 WHERE tc.table_schema = $1 AND tc.table_name = $2
			   AND tc.constraint_type = 'PRIMARY KEY'`, a.schema(), name)
		if err == nil {
			for pkRows.Next() {
				var col string
				if err := pkRows.Scan(&col); err == nil {
					pks[strings.ToLower(col)] = true
				}
			}
			pkRows.Close()
		}

		colRows, err := a.pool.Query(ctx,
			`SELECT column_name, data_type, is_nullable
			 FROM information_schema.columns
			 WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`,
			a.schema(), name)
		if err != nil {
			return nil, classifyExec("introspect", err)
		}
		for colRows.Next() {
			var colName, dataType, nullable string
			if err := colRows.Scan(&colName, &dataType, &nullable); err != nil {
				colRows.Close()
				return nil, classifyExec("introspect", err)
			}
			table.Columns = append(table.Columns, Column{
				Name:       colName,
				Type:       dataType,
				Nullable:   nullable == "YES",
				PrimaryKey: pks[strings.ToLower(colName)],
			})
		}
		colRows.Close()

		fkRows, err := a.pool.Query(ctx,
			`SELECT kcu.column_name, ccu.table_name, ccu.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu
			   ON tc.constraint_name = kcu.constraint_name
			  AND tc.table_schema = kcu.table_schema
			 JOIN information_schema.constraint_column_usage ccu
			   ON ccu.constraint_name = tc.constraint_name
			  AND ccu.table_schema = tc.table_schema
			 WHERE tc.table_schema = $1 AND tc.table_name = $2
			   AND tc.constraint_type = 'FOREIGN KEY'`, a.schema(), name)
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

		if err := a.pool.QueryRow(ctx,
			`SELECT reltuples::bigint FROM pg_class c
			 JOIN pg_namespace n ON n.oid = c.relnamespace
			 WHERE n.nspname = $1 AND c.relname = $2`, a.schema(), name).Scan(&table.RowCount); err != nil {
			logging.AdapterDebug("postgres: row estimate for %s failed: %v", name, err)
		}
		if table.RowCount < 0 {
			table.RowCount = 0
		}
		snap.Tables = append(snap.Tables, table)
	}
	snap.InferImplicitKeys()
	return snap, nil
}

func (a *postgresAdapter) qualify(table string) string {
	return quoteIdent(a.schema()) + "." + quoteIdent(table)
}

func (a *postgresAdapter) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if a.pool == nil {
		return 0, connErr("distinct_count", fmt.Errorf("not connected"))
	}
	var count int64
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL`,
		quoteIdent(column), a.qualify(table), quoteIdent(column))
	if err := a.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, classifyExec("distinct_count", err)
	}
	return count, nil
}

func (a *postgresAdapter) SampleColumnValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if a.pool == nil {
		return nil, connErr("sample", fmt.Errorf("not connected"))
	}
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d`,
		quoteIdent(column), a.qualify(table), quoteIdent(column), limit)
	rows, err := a.pool.Query(ctx, q)
	if err != nil {
		return nil, classifyExec("sample", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, classifyExec("sample", err)
		}
		switch s := v.(type) {
		case string:
			out = append(out, s)
		case []byte:
			out = append(out, string(s))
		case nil:
		default:
			out = append(out, fmt.Sprintf("%v", s))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExec("sample", err)
	}
	return out, nil
}

func (a *postgresAdapter) Execute(ctx context.Context, query string, timeout time.Duration) (*QueryResult, error) {
	if a.pool == nil {
		return nil, connErr("execute", fmt.Errorf("not connected"))
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !isReadQuery(query) {
		tag, err := a.pool.Exec(execCtx, query)
		if err != nil {
			return nil, classifyExec("execute", err)
		}
		return &QueryResult{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := a.pool.Query(execCtx, query)
	if err != nil {
		return nil, classifyExec("execute", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	result := &QueryResult{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		result.Columns[i] = string(fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classifyExec("execute", err)
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExec("execute", err)
	}
	return result, nil
}

package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// quoteIdent double-quotes an identifier. All three supported engines accept
// standard double-quoted identifiers; embedded quotes are doubled.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// isReadQuery reports whether the statement produces a row set.
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH") ||
		strings.HasPrefix(q, "PRAGMA") || strings.HasPrefix(q, "EXPLAIN")
}

// collectRows drains a database/sql row set into a QueryResult.
func collectRows(rows *sql.Rows) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, classifyExec("execute", err)
	}
	result := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifyExec("execute", err)
		}
		for i, v := range vals {
			// Drivers hand back []byte for text columns; normalize so the
			// result is directly printable and JSON-friendly.
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExec("execute", err)
	}
	return result, nil
}

// scanStringColumn drains a single-column row set into strings, stringifying
// non-text values.
func scanStringColumn(rows *sql.Rows) ([]string, error) {
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

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies adapter failures for the pipeline's error analysis.
type ErrorKind int

const (
	// ErrConfig: malformed or incomplete connection parameters. Terminal.
	ErrConfig ErrorKind = iota
	// ErrConnection: network, auth or pool failure. Terminal.
	ErrConnection
	// ErrSyntax: the engine rejected the SQL text.
	ErrSyntax
	// ErrSchema: unknown table or column.
	ErrSchema
	// ErrRuntime: constraint, type or permission failure during execution.
	ErrRuntime
	// ErrTimeout: the per-call deadline expired.
	ErrTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfig:
		return "config"
	case ErrConnection:
		return "connection"
	case ErrSyntax:
		return "syntax"
	case ErrSchema:
		return "schema"
	case ErrRuntime:
		return "runtime"
	case ErrTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a classified adapter failure. Raw preserves the engine's original
// message verbatim so the error-analysis stage can mine it for identifiers.
type Error struct {
	Kind ErrorKind
	Op   string
	Raw  string
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Op, e.Raw)
}

func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the ErrorKind from err, defaulting to ErrRuntime.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrRuntime
}

// Terminal reports whether err is non-recoverable for a pipeline run:
// retrying config or connection failures only wastes the attempt budget.
func Terminal(err error) bool {
	switch KindOf(err) {
	case ErrConfig, ErrConnection:
		return true
	}
	return false
}

func configErr(op, msg string) *Error {
	return &Error{Kind: ErrConfig, Op: op, Raw: msg}
}

func connErr(op string, err error) *Error {
	return &Error{Kind: ErrConnection, Op: op, Raw: err.Error(), err: err}
}

// classifyExec maps an engine error from Execute into an *Error. The
// SQLSTATE path covers postgres and vertica; the message path covers sqlite,
// whose driver reports plain strings.
func classifyExec(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Op: op, Raw: err.Error(), err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Kind: kindFromSQLState(pgErr.Code), Op: op, Raw: pgErr.Message, err: err}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	kind := ErrRuntime
	switch {
	case strings.Contains(lower, "syntax error"):
		kind = ErrSyntax
	case strings.Contains(lower, "no such table"),
		strings.Contains(lower, "no such column"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "ambiguous column"):
		kind = ErrSchema
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "canceled"):
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Op: op, Raw: msg, err: err}
}

// kindFromSQLState maps SQLSTATE classes shared by postgres and vertica.
func kindFromSQLState(code string) ErrorKind {
	switch {
	case code == "42601": // syntax_error
		return ErrSyntax
	case code == "42P01", code == "42703", code == "42702": // undefined table/column, ambiguous
		return ErrSchema
	case code == "57014": // query_canceled (statement_timeout)
		return ErrTimeout
	case code == "42501": // insufficient_privilege
		return ErrRuntime
	case strings.HasPrefix(code, "08"): // connection exceptions
		return ErrConnection
	case strings.HasPrefix(code, "42"): // remaining syntax-or-access class
		return ErrSyntax
	default: // 22xxx data, 23xxx constraint, ...
		return ErrRuntime
	}
}

// Package db provides a uniform adapter contract over heterogeneous SQL
// engines (SQLite, PostgreSQL, Vertica). Each variant hides its own dialect:
// catalog queries, identifier quoting and placeholder style never leak past
// this package. The pipeline above never branches on engine kind.
package db

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies a supported database engine.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgresql"
	KindVertica  Kind = "vertica"
)

// ConnParams is a resolved set of connection parameters for one named
// database. The configuration store produces these; the adapter only reads
// them.
type ConnParams struct {
	Name     string
	Kind     Kind
	Host     string
	Port     int
	Database string
	Schema   string
	User     string
	Password string
	SSLMode  string

	// ConnectTimeout bounds the initial dial/probe. Zero means 10s.
	ConnectTimeout time.Duration
}

func (p ConnParams) connectTimeout() time.Duration {
	if p.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return p.ConnectTimeout
}

// TableSample is one entry of a validation verdict's table preview.
type TableSample struct {
	Name     string
	RowCount int64
}

// Validation is the structured verdict of a cheap reachability probe.
// Validate never returns an error: an unreachable or broken database yields
// Valid=false with the reason in Error.
type Validation struct {
	Valid        bool
	TableCount   int
	SizeEstimate int64
	SampleTables []TableSample
	Error        string
}

// Adapter is the uniform capability set every engine variant implements.
//
// Execute and the introspection calls accept a context; implementations must
// respect cancellation and must not retry connection failures on their own.
type Adapter interface {
	// Kind reports the engine variant.
	Kind() Kind

	// Connect opens the underlying pool. ConnectionError on network/auth
	// failure, ConfigError on malformed parameters.
	Connect(ctx context.Context) error

	// Close tears down the pool. Safe to call on a never-connected adapter.
	Close() error

	// Validate runs a cheap probe and always returns a verdict.
	Validate(ctx context.Context) Validation

	// IntrospectSchema reads the engine's catalog and returns a normalized
	// snapshot.
	IntrospectSchema(ctx context.Context) (*SchemaSnapshot, error)

	// DistinctCount returns the number of distinct non-null values in a
	// column. Used to gate sampling to low-cardinality columns.
	DistinctCount(ctx context.Context, table, column string) (int64, error)

	// SampleColumnValues returns up to limit distinct non-null values.
	SampleColumnValues(ctx context.Context, table, column string, limit int) ([]string, error)

	// Execute runs SQL with the given timeout and returns the result.
	// Failures carry a classified *Error preserving the engine's raw message.
	Execute(ctx context.Context, sql string, timeout time.Duration) (*QueryResult, error)
}

// Open constructs the adapter variant for params.Kind without connecting.
func Open(params ConnParams) (Adapter, error) {
	if params.Database == "" {
		return nil, configErr("open", fmt.Sprintf("connection %q: database is required", params.Name))
	}
	switch params.Kind {
	case KindSQLite:
		return newSQLiteAdapter(params), nil
	case KindPostgres:
		return newPostgresAdapter(params), nil
	case KindVertica:
		return newVerticaAdapter(params), nil
	default:
		return nil, configErr("open", fmt.Sprintf("unsupported database kind %q", params.Kind))
	}
}

package knowledge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlnerd/internal/db"
)

// fakeAdapter serves a fixed snapshot and value sets without a database.
type fakeAdapter struct {
	snapshot      *db.SchemaSnapshot
	values        map[string][]string // "table.column" -> sampled values
	distinct      map[string]int64
	introspects   atomic.Int32
	distinctCalls atomic.Int32
	sampleCalls   atomic.Int32
}

func (f *fakeAdapter) Kind() db.Kind                 { return db.KindSQLite }
func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) Close() error                  { return nil }

func (f *fakeAdapter) Validate(context.Context) db.Validation {
	return db.Validation{Valid: true, TableCount: len(f.snapshot.Tables)}
}

func (f *fakeAdapter) IntrospectSchema(context.Context) (*db.SchemaSnapshot, error) {
	f.introspects.Add(1)
	return f.snapshot, nil
}

func (f *fakeAdapter) DistinctCount(_ context.Context, table, column string) (int64, error) {
	f.distinctCalls.Add(1)
	if n, ok := f.distinct[table+"."+column]; ok {
		return n, nil
	}
	return int64(len(f.values[table+"."+column])), nil
}

func (f *fakeAdapter) SampleColumnValues(_ context.Context, table, column string, limit int) ([]string, error) {
	f.sampleCalls.Add(1)
	values := f.values[table+"."+column]
	if len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

func (f *fakeAdapter) Execute(context.Context, string, time.Duration) (*db.QueryResult, error) {
	return &db.QueryResult{}, nil
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		snapshot: &db.SchemaSnapshot{
			Kind: db.KindSQLite,
			Tables: []db.Table{
				{
					Name:     "customers",
					RowCount: 3,
					Columns: []db.Column{
						{Name: "CustomerId", Type: "INTEGER", PrimaryKey: true},
						{Name: "last_name", Type: "TEXT"},
						{Name: "email", Type: "TEXT"},
						{Name: "notes", Type: "TEXT"},
					},
				},
			},
		},
		values: map[string][]string{
			"customers.last_name": {"Murray", "Jansen", "Janzen"},
			"customers.email":     {"a@example.com", "b@example.com", "c@example.com"},
			"customers.notes":     {"free text"},
		},
		distinct: map[string]int64{},
	}
}

func TestBase_RebuildBumpsVersion(t *testing.T) {
	adapter := newFakeAdapter()
	base := NewBase(adapter)
	ctx := context.Background()

	snap, version := base.Snapshot()
	assert.Nil(t, snap)
	assert.Zero(t, version)

	require.NoError(t, base.Rebuild(ctx))
	snap, version = base.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), version)

	require.NoError(t, base.Rebuild(ctx))
	_, version = base.Snapshot()
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, int32(2), adapter.introspects.Load())
}

func TestBase_ColumnValuesSamplesLazily(t *testing.T) {
	adapter := newFakeAdapter()
	base := NewBase(adapter)
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	assert.Zero(t, adapter.sampleCalls.Load(), "rebuild must not sample eagerly")

	values, err := base.ColumnValues(ctx, "customers", "last_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Murray", "Jansen", "Janzen"}, values)
	assert.Equal(t, int32(1), adapter.sampleCalls.Load())

	// Second read hits the cache.
	_, err = base.ColumnValues(ctx, "customers", "last_name")
	require.NoError(t, err)
	assert.Equal(t, int32(1), adapter.sampleCalls.Load())
	assert.Equal(t, int32(1), adapter.distinctCalls.Load())
}

func TestBase_HighCardinalityColumnIsSkipped(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.distinct["customers.notes"] = 100000
	base := NewBase(adapter)
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	values, err := base.ColumnValues(ctx, "customers", "notes")
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.Zero(t, adapter.sampleCalls.Load())

	// The skip verdict is cached too.
	_, err = base.ColumnValues(ctx, "customers", "notes")
	require.NoError(t, err)
	assert.Equal(t, int32(1), adapter.distinctCalls.Load())
}

func TestBase_RebuildDropsSamples(t *testing.T) {
	adapter := newFakeAdapter()
	base := NewBase(adapter)
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	_, err := base.ColumnValues(ctx, "customers", "last_name")
	require.NoError(t, err)
	require.NoError(t, base.Rebuild(ctx))

	_, err = base.ColumnValues(ctx, "customers", "last_name")
	require.NoError(t, err)
	assert.Equal(t, int32(2), adapter.sampleCalls.Load(), "stale samples must not survive a rebuild")
}

func TestBase_LookupSimilar(t *testing.T) {
	base := NewBase(newFakeAdapter())
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	candidates, err := base.LookupSimilar(ctx, "Muray")
	require.NoError(t, err)

	var values []string
	for _, c := range candidates {
		values = append(values, c.Value)
	}
	assert.Contains(t, values, "Murray")
	for _, c := range candidates {
		if c.Value == "Murray" {
			assert.Equal(t, "customers", c.Table)
			assert.Equal(t, "last_name", c.Column)
		}
	}
}

func TestBase_LookupSimilarSkipsPatternedColumns(t *testing.T) {
	adapter := &fakeAdapter{
		snapshot: &db.SchemaSnapshot{
			Kind: db.KindSQLite,
			Tables: []db.Table{{
				Name: "contacts",
				Columns: []db.Column{
					{Name: "email", Type: "TEXT"},
					{Name: "last_name", Type: "TEXT"},
				},
			}},
		},
		values: map[string][]string{
			"contacts.email":     {"muray@example.com", "jansen@example.com", "bjorn@example.com"},
			"contacts.last_name": {"Murray", "Jansen"},
		},
		distinct: map[string]int64{},
	}
	base := NewBase(adapter)
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	// "Muray" is not shaped like an email, so the email column contributes
	// nothing even though "muray@example.com" passes the fuzzy prefilter.
	candidates, err := base.LookupSimilar(ctx, "Muray")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.NotEqual(t, "email", c.Column)
	}

	// An email-shaped token still searches email columns.
	candidates, err = base.LookupSimilar(ctx, "muray@exmple.com")
	require.NoError(t, err)
	var values []string
	for _, c := range candidates {
		values = append(values, c.Value)
	}
	assert.Contains(t, values, "muray@example.com")
}

func TestBase_ResolveTableForEntity(t *testing.T) {
	base := NewBase(newFakeAdapter())
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	// A sampled value resembling one of the entity's words pins the table.
	table, ok := base.ResolveTableForEntity(ctx, "Steve Muray")
	require.True(t, ok)
	assert.Equal(t, "customers", table)

	// The entity names the table itself, singular.
	table, ok = base.ResolveTableForEntity(ctx, "customer")
	require.True(t, ok)
	assert.Equal(t, "customers", table)

	_, ok = base.ResolveTableForEntity(ctx, "xqzzy")
	assert.False(t, ok)
}

func TestBase_ResolveTableForEntityFollowsForeignKeys(t *testing.T) {
	adapter := &fakeAdapter{
		snapshot: &db.SchemaSnapshot{
			Kind: db.KindSQLite,
			Tables: []db.Table{
				{
					Name: "people",
					Columns: []db.Column{
						{Name: "PersonId", Type: "INTEGER", PrimaryKey: true},
						{Name: "full_name", Type: "TEXT"},
					},
				},
				{
					Name: "orders",
					Columns: []db.Column{
						{Name: "OrderId", Type: "INTEGER", PrimaryKey: true},
						{Name: "PersonId", Type: "INTEGER"},
					},
					ForeignKeys: []db.ForeignKey{
						{Column: "PersonId", RefTable: "people", RefColumn: "PersonId", Type: "implicit"},
					},
				},
			},
		},
		values:   map[string][]string{"people.full_name": {"Alice", "Bob"}},
		distinct: map[string]int64{},
	}
	base := NewBase(adapter)
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	// Neither content nor a table name matches "person"; the implicit key
	// column PersonId resolves it to the table it references.
	table, ok := base.ResolveTableForEntity(ctx, "person")
	require.True(t, ok)
	assert.Equal(t, "people", table)
}

func TestBase_Warm(t *testing.T) {
	adapter := newFakeAdapter()
	base := NewBase(adapter)
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	require.NoError(t, base.Warm(ctx))
	assert.Equal(t, int32(3), adapter.sampleCalls.Load(), "all three text columns sampled")

	require.NoError(t, base.Warm(ctx))
	assert.Equal(t, int32(3), adapter.sampleCalls.Load(), "warming twice is free")
}

func TestBase_DetectPattern(t *testing.T) {
	base := NewBase(newFakeAdapter())
	ctx := context.Background()
	require.NoError(t, base.Rebuild(ctx))

	p, err := base.DetectPattern(ctx, "customers", "email")
	require.NoError(t, err)
	assert.Equal(t, PatternEmail, p)

	p, err = base.DetectPattern(ctx, "customers", "last_name")
	require.NoError(t, err)
	assert.Equal(t, PatternFreeText, p)
}

func TestBase_SchemaText(t *testing.T) {
	base := NewBase(newFakeAdapter())
	require.NoError(t, base.Rebuild(context.Background()))

	text := base.SchemaText()
	assert.Contains(t, text, "TABLE customers (3 rows)")
	assert.Contains(t, text, "CustomerId INTEGER PK")
	assert.Contains(t, text, "last_name TEXT")
}

func TestBase_NoteQueryColumns(t *testing.T) {
	base := NewBase(newFakeAdapter())
	require.NoError(t, base.Rebuild(context.Background()))

	base.NoteQueryColumns(`SELECT last_name FROM customers`)
	base.NoteQueryColumns(`SELECT last_name FROM customers WHERE email = 'a@example.com'`)

	assert.Equal(t, 2, base.refCount("customers", "last_name"))
	assert.Equal(t, 1, base.refCount("customers", "email"))
	assert.Zero(t, base.refCount("customers", "notes"))
}

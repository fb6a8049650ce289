// Package knowledge maintains what the agent knows about the active
// database: a versioned schema snapshot plus lazily sampled column content.
// Everything here is derived state; the adapter remains the source of truth.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"sqlnerd/internal/db"
	"sqlnerd/internal/logging"
)

const (
	// DefaultSampleLimit caps distinct values fetched per column.
	DefaultSampleLimit = 100
	// DefaultDistinctThreshold skips sampling for columns with more
	// distinct values than this (free-text, not enumerable content).
	DefaultDistinctThreshold = 500
)

// columnKey identifies a sampled column.
type columnKey struct {
	Table  string
	Column string
}

func (k columnKey) String() string { return k.Table + "." + k.Column }

// sample is a cached sampling outcome. A skipped column caches an empty
// value set so the distinct-count probe runs once.
type sample struct {
	values  []string
	skipped bool
}

// Base is the knowledge base for one connection. Safe for concurrent use.
// Sampling races are benign: the probe is idempotent and last write wins.
type Base struct {
	adapter db.Adapter

	mu       sync.RWMutex
	snapshot *db.SchemaSnapshot
	version  uint64
	samples  map[columnKey]sample
	patterns map[columnKey]ContentPattern
	colRefs  map[columnKey]int

	sampleLimit       int
	distinctThreshold int64
}

// NewBase creates a knowledge base over an adapter with default limits.
func NewBase(adapter db.Adapter) *Base {
	return &Base{
		adapter:           adapter,
		samples:           map[columnKey]sample{},
		patterns:          map[columnKey]ContentPattern{},
		colRefs:           map[columnKey]int{},
		sampleLimit:       DefaultSampleLimit,
		distinctThreshold: DefaultDistinctThreshold,
	}
}

// Rebuild re-introspects the schema, bumps the version and drops all cached
// samples. Called on connect and on switch.
func (b *Base) Rebuild(ctx context.Context) error {
	t := logging.StartTimer(logging.CategoryKnowledge, "schema rebuild")
	snap, err := b.adapter.IntrospectSchema(ctx)
	if err != nil {
		return err
	}
	t.Stop()

	b.mu.Lock()
	b.snapshot = snap
	b.version++
	b.samples = map[columnKey]sample{}
	b.patterns = map[columnKey]ContentPattern{}
	b.colRefs = map[columnKey]int{}
	version := b.version
	b.mu.Unlock()

	logging.Knowledge("snapshot v%d: %d tables", version, len(snap.Tables))
	return nil
}

// Snapshot returns the current schema snapshot and its version. The snapshot
// is nil before the first Rebuild.
func (b *Base) Snapshot() (*db.SchemaSnapshot, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot, b.version
}

// Version returns the current snapshot version.
func (b *Base) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// ColumnValues returns the sampled distinct values of a column, sampling on
// first use. High-cardinality columns are skipped and cached as empty.
func (b *Base) ColumnValues(ctx context.Context, table, column string) ([]string, error) {
	key := columnKey{Table: table, Column: column}

	b.mu.RLock()
	if s, ok := b.samples[key]; ok {
		b.mu.RUnlock()
		return s.values, nil
	}
	b.mu.RUnlock()

	s, err := b.sampleColumn(ctx, key)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.samples[key] = s
	b.mu.Unlock()
	return s.values, nil
}

func (b *Base) sampleColumn(ctx context.Context, key columnKey) (sample, error) {
	distinct, err := b.adapter.DistinctCount(ctx, key.Table, key.Column)
	if err != nil {
		return sample{}, err
	}
	if distinct > b.distinctThreshold {
		logging.KnowledgeDebug("skip sampling %s: %d distinct values", key, distinct)
		return sample{skipped: true}, nil
	}
	values, err := b.adapter.SampleColumnValues(ctx, key.Table, key.Column, b.sampleLimit)
	if err != nil {
		return sample{}, err
	}
	logging.KnowledgeDebug("sampled %s: %d values", key, len(values))
	return sample{values: values}, nil
}

// SampleCount reports how many columns have a cached sampling outcome.
func (b *Base) SampleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Warm samples every text column concurrently. Failures on individual
// columns abort the whole warm-up; callers treat warming as best effort.
func (b *Base) Warm(ctx context.Context) error {
	snap, _ := b.Snapshot()
	if snap == nil {
		return fmt.Errorf("no schema snapshot")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, table := range snap.Tables {
		for _, col := range table.Columns {
			if !db.IsTextType(col.Type) {
				continue
			}
			tableName, colName := table.Name, col.Name
			g.Go(func() error {
				_, err := b.ColumnValues(gctx, tableName, colName)
				return err
			})
		}
	}
	return g.Wait()
}

// NoteQueryColumns credits columns referenced by a successfully executed
// statement. The counts break ties during autocorrection.
func (b *Base) NoteQueryColumns(sql string) {
	snap, _ := b.Snapshot()
	if snap == nil {
		return
	}
	lower := strings.ToLower(sql)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, table := range snap.Tables {
		if !strings.Contains(lower, strings.ToLower(table.Name)) {
			continue
		}
		for _, col := range table.Columns {
			if strings.Contains(lower, strings.ToLower(col.Name)) {
				b.colRefs[columnKey{Table: table.Name, Column: col.Name}]++
			}
		}
	}
}

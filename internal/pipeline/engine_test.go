package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlnerd/internal/autocorrect"
	"sqlnerd/internal/config"
	"sqlnerd/internal/model"
	"sqlnerd/internal/session"
)

// newTestSession seeds a sqlite database, registers it, and switches to it.
func newTestSession(t *testing.T) *session.Manager {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shop.db")

	raw, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE customers (
			CustomerId INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			city TEXT
		);
		INSERT INTO customers VALUES
			(1, 'Steve', 'Murray', 'Oslo'),
			(2, 'Anna', 'Jansen', 'Bergen'),
			(3, 'Pia', 'Janzen', 'Oslo');
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	regPath := filepath.Join(dir, "databases.yaml")
	require.NoError(t, os.WriteFile(regPath, []byte(`databases:
  - name: shop
    kind: sqlite
    database: `+dbPath+`
`), 0644))

	registry, err := config.LoadRegistry(regPath)
	require.NoError(t, err)

	manager := session.NewManager(registry)
	require.NoError(t, manager.Switch(context.Background(), "shop"))
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestRun_ScenarioA_CorrectsAndExecutes(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{SQLQueue: []string{
		"SELECT first_name, last_name FROM customers WHERE last_name = 'Murray';",
	}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "Show me Steve Muray")
	require.NoError(t, err)
	require.True(t, summary.Success)

	require.Len(t, summary.Corrections, 1)
	assert.Equal(t, "Muray", summary.Corrections[0].Original)
	assert.Equal(t, "Murray", summary.Corrections[0].Corrected)
	assert.GreaterOrEqual(t, summary.Corrections[0].Score, autocorrect.Threshold)

	assert.Equal(t, "Show me Steve Murray", summary.CorrectedQuery)
	assert.Equal(t, 1, summary.Attempts)
	require.Len(t, summary.Result.Rows, 1)
	assert.Equal(t, "Murray", summary.Result.Rows[0][1])

	// Generation saw the corrected query and the entity's resolved table.
	require.Len(t, fake.GenerateCalls, 1)
	assert.Equal(t, "Show me Steve Murray", fake.GenerateCalls[0].Query)
	assert.Equal(t, "customers", fake.GenerateCalls[0].TableHints["Steve Murray"])
}

func TestRun_TraceKeepsPreCorrectionEntities(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{SQLQueue: []string{
		"SELECT first_name, last_name FROM customers WHERE last_name = 'Murray';",
	}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "Show me Steve Muray")
	require.NoError(t, err)

	var entStage, acStage map[string]string
	for _, s := range summary.Trace {
		switch s.State {
		case StateEntities:
			entStage = s.Entities
		case StateAutocorrect:
			acStage = s.Entities
		}
	}
	require.NotNil(t, entStage)
	assert.Equal(t, "Steve Muray", entStage["name"],
		"the ENTITIES stage records the values as asked, untouched by later correction")
	require.NotNil(t, acStage)
	assert.Equal(t, "Steve Murray", acStage["name"])
}

func TestRun_ScenarioB_RefinesAfterSchemaError(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{SQLQueue: []string{
		"SELECT surname FROM customers;",
		"SELECT last_name FROM customers;",
	}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "what are the customer names")
	require.NoError(t, err)
	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.Attempts)
	assert.Len(t, summary.Result.Rows, 3)

	// The refinement entry carried the diagnosis forward.
	require.Len(t, fake.GenerateCalls, 2)
	second := fake.GenerateCalls[1]
	assert.Equal(t, "SELECT surname FROM customers;", second.PriorSQL)
	assert.Contains(t, second.Diagnosis, "surname")
}

func TestRun_BudgetExhaustion(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{SQLQueue: []string{
		"SELECT nope1 FROM customers;",
		"SELECT nope2 FROM customers;",
		"SELECT nope3 FROM customers;",
		"SELECT nope4 FROM customers;",
	}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "what are the customer names")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, 1+DefaultRetryBudget, summary.Attempts)
	assert.Contains(t, summary.Message, "retry budget exhausted")
	assert.Equal(t, "SELECT nope4 FROM customers;", summary.SQL,
		"failure report carries the last attempted SQL")
	assert.Len(t, fake.GenerateCalls, 4, "attempt count never exceeds 1 + retry budget")
}

func TestRun_IdenticalRegenerationIsRejected(t *testing.T) {
	manager := newTestSession(t)
	bad := "SELECT nope FROM customers;"
	fake := &model.Fake{SQLQueue: []string{bad, bad, bad, bad}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "what are the customer names")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, 1+DefaultRetryBudget, summary.Attempts)
	assert.Contains(t, summary.Message, "identical")
}

func TestRun_UnsupportedIntentShortCircuits(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{Intent: model.Intent{Kind: model.IntentUnsupported, Confidence: 0.9}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "write me a poem")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Empty(t, fake.GenerateCalls, "unsupported questions never reach SQL generation")
	assert.Contains(t, summary.Message, "cannot be answered")
}

func TestRun_MetaQueryAnswersFromSnapshot(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "list tables")
	require.NoError(t, err)
	require.True(t, summary.Success)
	assert.Empty(t, fake.GenerateCalls)
	require.Len(t, summary.Result.Rows, 1)
	assert.Equal(t, "customers", summary.Result.Rows[0][0])
}

func TestRun_ModelUnavailableIsTerminal(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{Err: model.ErrUnavailable}
	engine := NewEngine(manager, fake, nil, Options{})

	_, err := engine.Run(context.Background(), "what are the customer names")
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestRun_AmbiguousCorrectionIsSurfaced(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{}
	engine := NewEngine(manager, fake, nil, Options{})

	// Janben is one edit from both Jansen and Janzen with no history and
	// no reference counts to break the tie.
	_, err := engine.Run(context.Background(), "orders by Janben")
	var ambiguous *autocorrect.AmbiguousError
	require.True(t, errors.As(err, &ambiguous), "expected AmbiguousError, got %v", err)
	assert.Empty(t, fake.GenerateCalls)
}

func TestRun_ZeroRowNameFallback(t *testing.T) {
	manager := newTestSession(t)
	fake := &model.Fake{SQLQueue: []string{
		"SELECT * FROM customers WHERE first_name = 'Anna' AND last_name = 'Murray';",
		"SELECT * FROM customers WHERE last_name = 'Jansen' OR last_name = 'Murray';",
	}}
	engine := NewEngine(manager, fake, nil, Options{})

	summary, err := engine.Run(context.Background(), "Find Anna Jansen or Steve Murray")
	require.NoError(t, err)
	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.Attempts, "zero-row fallback spends one refinement")
	assert.Len(t, summary.Result.Rows, 2)

	require.Len(t, fake.GenerateCalls, 2)
	assert.Contains(t, fake.GenerateCalls[1].Diagnosis, "zero rows")
}

func TestRun_NoActiveDatabase(t *testing.T) {
	registry, err := config.LoadRegistry(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	engine := NewEngine(session.NewManager(registry), &model.Fake{}, nil, Options{})

	_, err = engine.Run(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoActiveDatabase)
}

// switchMidRun switches the active database from inside intent
// classification, simulating a concurrent switch landing mid-run.
type switchMidRun struct {
	model.Fake
	manager *session.Manager
	target  string
}

func (c *switchMidRun) ClassifyIntent(ctx context.Context, query string) (model.Intent, error) {
	if err := c.manager.Switch(ctx, c.target); err != nil {
		return model.Intent{}, err
	}
	return c.Fake.ClassifyIntent(ctx, query)
}

func TestRun_StaleContextAbortsRun(t *testing.T) {
	manager := newTestSession(t)
	client := &switchMidRun{manager: manager, target: "shop"}
	engine := NewEngine(manager, client, nil, Options{})

	_, err := engine.Run(context.Background(), "what are the customer names")
	var stale *StaleContextError
	require.True(t, errors.As(err, &stale), "expected StaleContextError, got %v", err)
}

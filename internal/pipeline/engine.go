package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"sqlnerd/internal/autocorrect"
	"sqlnerd/internal/db"
	"sqlnerd/internal/knowledge"
	"sqlnerd/internal/logging"
	"sqlnerd/internal/model"
	"sqlnerd/internal/session"
)

const (
	// DefaultRetryBudget bounds refinement passes after the first attempt.
	DefaultRetryBudget = 3
	// DefaultExecTimeout bounds one adapter execute call.
	DefaultExecTimeout = 30 * time.Second
)

// Options tune a pipeline engine. Zero values take the defaults.
type Options struct {
	RetryBudget int
	ExecTimeout time.Duration
}

// Engine runs queries through the pipeline against the session's active
// database.
type Engine struct {
	sessions    *session.Manager
	client      model.Client
	history     *autocorrect.History
	budget      int
	execTimeout time.Duration
}

// NewEngine creates a pipeline engine. history may be nil.
func NewEngine(sessions *session.Manager, client model.Client, history *autocorrect.History, opts Options) *Engine {
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = DefaultRetryBudget
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = DefaultExecTimeout
	}
	return &Engine{
		sessions:    sessions,
		client:      client,
		history:     history,
		budget:      opts.RetryBudget,
		execTimeout: opts.ExecTimeout,
	}
}

// Run executes one query through the full state machine. Recoverable
// failures are diagnosed and refined within the retry budget; terminal
// conditions return the partial summary together with the error.
func (e *Engine) Run(ctx context.Context, query string) (*Summary, error) {
	active := e.sessions.Current()
	if active == nil {
		return nil, ErrNoActiveDatabase
	}
	gen := e.sessions.Generation()
	base := active.Base
	snap, _ := base.Snapshot()

	run := newRun(query, gen)
	logging.Pipeline("run %s started: %q", run.ID, query)

	// Catalog questions answer straight from the snapshot.
	if result, ok := metaQuery(snap, query); ok {
		run.add(StageResult{State: StateExecute, Result: result})
		return &Summary{
			RunID:          run.ID,
			Query:          query,
			CorrectedQuery: query,
			Intent:         model.Intent{Kind: model.IntentLookup, Confidence: 1},
			Result:         result,
			Attempts:       0,
			Success:        true,
			Message:        "answered from schema catalog",
			Trace:          run.Stages,
		}, nil
	}

	intent, err := e.client.ClassifyIntent(ctx, query)
	if err != nil {
		return e.failed(run, query, query, nil, 0, err.Error()), err
	}
	run.add(StageResult{State: StateIntent, Intent: &intent})
	if intent.Kind == model.IntentUnsupported {
		s := e.failed(run, query, query, nil, 0, "this question cannot be answered with a SQL query")
		s.Intent = intent
		return s, nil
	}

	// Stage results are append-only, so record snapshots, never the live map.
	entities := extractEntities(query)
	run.add(StageResult{State: StateEntities, Entities: maps.Clone(entities)})

	corrector := autocorrect.NewEngine(base, e.history)
	corrected, corrections, err := corrector.Correct(ctx, query)
	if err != nil {
		s := e.failed(run, query, query, nil, 0, err.Error())
		s.Intent = intent
		return s, err
	}
	applyCorrections(entities, corrections)
	run.add(StageResult{State: StateAutocorrect, Corrections: corrections, Entities: maps.Clone(entities)})

	tableHints := resolveTableHints(ctx, base, entities)

	dialect := string(active.Adapter.Kind())
	schemaText := base.SchemaText()
	maxAttempts := 1 + e.budget

	var (
		diag             diagnosis
		priorSQL         string
		usedNameFallback bool
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return e.failed(run, query, corrected, corrections, attempt-1, err.Error()), err
		}
		if cur := e.sessions.Generation(); cur != gen {
			staleErr := &StaleContextError{RunGeneration: gen, CurrentGeneration: cur}
			return e.failed(run, query, corrected, corrections, attempt-1, staleErr.Error()), staleErr
		}

		req := model.GenerateRequest{
			Query:      corrected,
			Schema:     schemaText,
			Entities:   entities,
			TableHints: tableHints,
			Dialect:    dialect,
			PriorSQL:   priorSQL,
			Diagnosis:  diag.text(),
		}
		sqlText, err := e.client.GenerateSQL(ctx, req)
		if err != nil {
			return e.failed(run, query, corrected, corrections, attempt-1, err.Error()), err
		}
		run.add(StageResult{State: StateGenerate, SQL: sqlText, Attempt: attempt})

		// A verbatim repeat cannot succeed where its twin just failed.
		if priorSQL != "" && sqlText == priorSQL {
			diag = diagnosis{Kind: db.ErrRuntime, Raw: "regenerated statement is identical to the failed one"}
			run.add(StageResult{State: StateAnalyze, ErrKind: diag.Kind.String(), ErrText: diag.Raw, Attempt: attempt})
			run.add(StageResult{State: StateRefine, Attempt: attempt})
			continue
		}

		if v := validate(snap, sqlText); !v.OK {
			run.add(StageResult{State: StateValidate, Issue: v.Message, Attempt: attempt})
			diag = analyze(snap, v.Kind, v.Message)
			run.add(StageResult{State: StateAnalyze, ErrKind: diag.Kind.String(), ErrText: diag.Raw, Hint: diag.Hint, Attempt: attempt})
			priorSQL = sqlText
			run.add(StageResult{State: StateRefine, Attempt: attempt})
			continue
		}
		run.add(StageResult{State: StateValidate, Attempt: attempt})

		result, err := active.Adapter.Execute(ctx, sqlText, e.execTimeout)
		if err != nil {
			if terminal(err) {
				return e.failed(run, query, corrected, corrections, attempt, err.Error()), err
			}
			diag = e.analyzeExecFailure(ctx, snap, sqlText, schemaText, err)
			run.add(StageResult{State: StateAnalyze, ErrKind: diag.Kind.String(), ErrText: diag.Raw, Hint: diag.Hint, Attempt: attempt})
			priorSQL = sqlText
			run.add(StageResult{State: StateRefine, Attempt: attempt})
			continue
		}
		run.add(StageResult{State: StateExecute, Result: result, Attempt: attempt})

		// A clean zero-row answer for a query naming several people is
		// usually a name split across columns; retry once asking for an
		// OR/IN match, spent against the same budget.
		if !usedNameFallback && len(result.Rows) == 0 &&
			nameEntityCount(entities) >= 2 && strings.Contains(sqlText, "'") &&
			attempt < maxAttempts {
			usedNameFallback = true
			diag = diagnosis{
				Kind: db.ErrRuntime,
				Raw:  "query executed but returned zero rows",
				Hint: "the name may be split across several columns; match any name column using OR or IN",
			}
			priorSQL = sqlText
			run.add(StageResult{State: StateRefine, Attempt: attempt})
			continue
		}

		base.NoteQueryColumns(sqlText)
		logging.Pipeline("run %s succeeded on attempt %d", run.ID, attempt)
		return &Summary{
			RunID:          run.ID,
			Query:          query,
			CorrectedQuery: corrected,
			Intent:         intent,
			Corrections:    corrections,
			SQL:            sqlText,
			Result:         result,
			Attempts:       attempt,
			Success:        true,
			Trace:          run.Stages,
		}, nil
	}

	logging.Pipeline("run %s exhausted retry budget", run.ID)
	s := e.failed(run, query, corrected, corrections, maxAttempts,
		fmt.Sprintf("retry budget exhausted: %s", diag.text()))
	s.Intent = intent
	return s, nil
}

// analyzeExecFailure classifies an adapter failure and enriches the hint via
// the model when fuzzy matching alone found nothing.
func (e *Engine) analyzeExecFailure(ctx context.Context, snap *db.SchemaSnapshot, sqlText, schemaText string, err error) diagnosis {
	kind := db.KindOf(err)
	raw := err.Error()
	var dbErr *db.Error
	if errors.As(err, &dbErr) && dbErr.Raw != "" {
		raw = dbErr.Raw
	}
	d := analyze(snap, kind, raw)
	if d.Hint == "" {
		if hint, derr := e.client.DiagnoseError(ctx, sqlText, raw, schemaText); derr == nil {
			d.Hint = hint
		}
	}
	return d
}

func (e *Engine) failed(run *Run, query, corrected string, corrections []autocorrect.Correction, attempts int, message string) *Summary {
	return &Summary{
		RunID:          run.ID,
		Query:          query,
		CorrectedQuery: corrected,
		Corrections:    corrections,
		SQL:            run.LastSQL(),
		Attempts:       attempts,
		Success:        false,
		Message:        message,
		Trace:          run.Stages,
	}
}

// applyCorrections rewrites entity values that were corrected in the query
// text so generation sees consistent literals.
func applyCorrections(entities map[string]string, corrections []autocorrect.Correction) {
	for role, value := range entities {
		for _, c := range corrections {
			if strings.Contains(value, c.Original) {
				entities[role] = strings.Replace(value, c.Original, c.Corrected, 1)
			}
		}
	}
}

// resolveTableHints maps name and quoted entity values to the table most
// likely holding them, steering generation toward the right tables.
func resolveTableHints(ctx context.Context, base *knowledge.Base, entities map[string]string) map[string]string {
	hints := map[string]string{}
	for role, value := range entities {
		if !strings.HasPrefix(role, roleName) && !strings.HasPrefix(role, roleQuoted) {
			continue
		}
		if table, ok := base.ResolveTableForEntity(ctx, value); ok {
			hints[value] = table
		}
	}
	return hints
}

var metaQueryPhrases = []string{
	"list tables", "show tables", "what tables", "which tables",
	"list the tables", "show me the tables",
}

// metaQuery answers catalog questions from the snapshot without involving
// the model or the database.
func metaQuery(snap *db.SchemaSnapshot, query string) (*db.QueryResult, bool) {
	if snap == nil {
		return nil, false
	}
	lower := strings.ToLower(query)
	matched := false
	for _, p := range metaQueryPhrases {
		if strings.Contains(lower, p) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}
	result := &db.QueryResult{Columns: []string{"table_name", "row_count"}}
	for _, t := range snap.Tables {
		result.Rows = append(result.Rows, []any{t.Name, t.RowCount})
	}
	return result, true
}

// Package pipeline turns a natural-language question into executed SQL via
// a bounded state machine: intent, entities, autocorrection, generation,
// validation, execution, and diagnosed refinement on failure.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"sqlnerd/internal/autocorrect"
	"sqlnerd/internal/db"
	"sqlnerd/internal/model"
)

// State names one pipeline stage.
type State string

const (
	StateIntent      State = "INTENT"
	StateEntities    State = "ENTITIES"
	StateAutocorrect State = "AUTOCORRECT"
	StateGenerate    State = "GENERATE_SQL"
	StateValidate    State = "VALIDATE"
	StateExecute     State = "EXECUTE"
	StateAnalyze     State = "ANALYZE_ERROR"
	StateRefine      State = "REFINE"
)

// StageResult is one entry in a run's trace. Exactly the fields relevant to
// its State are set; the rest stay zero.
type StageResult struct {
	State State
	At    time.Time

	Intent      *model.Intent
	Entities    map[string]string
	Corrections []autocorrect.Correction
	SQL         string
	Issue       string
	Result      *db.QueryResult
	ErrKind     string
	ErrText     string
	Hint        string
	Attempt     int
}

// Run is the full trace of one query through the pipeline. Stage results are
// append-only; nothing is mutated after being recorded.
type Run struct {
	ID         string
	Query      string
	Generation uint64
	StartedAt  time.Time
	Stages     []StageResult
}

func newRun(query string, generation uint64) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Query:      query,
		Generation: generation,
		StartedAt:  time.Now(),
	}
}

func (r *Run) add(s StageResult) {
	s.At = time.Now()
	r.Stages = append(r.Stages, s)
}

// LastSQL returns the most recently generated statement, if any.
func (r *Run) LastSQL() string {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].State == StateGenerate {
			return r.Stages[i].SQL
		}
	}
	return ""
}

// Summary is the caller-facing outcome of a run. Trace carries the full
// append-only stage record, so the run is reconstructable after the fact.
type Summary struct {
	RunID          string
	Query          string
	CorrectedQuery string
	Intent         model.Intent
	Corrections    []autocorrect.Correction
	SQL            string
	Result         *db.QueryResult
	Attempts       int
	Success        bool
	Message        string
	Trace          []StageResult
}

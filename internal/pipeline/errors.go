package pipeline

import (
	"errors"
	"fmt"

	"sqlnerd/internal/autocorrect"
	"sqlnerd/internal/db"
	"sqlnerd/internal/model"
	"sqlnerd/internal/session"
)

// StaleContextError reports that the active database changed while a run was
// in flight. The run aborts rather than mixing data from two databases.
type StaleContextError struct {
	RunGeneration     uint64
	CurrentGeneration uint64
}

func (e *StaleContextError) Error() string {
	return fmt.Sprintf("database switched mid-run (generation %d -> %d)",
		e.RunGeneration, e.CurrentGeneration)
}

// ErrNoActiveDatabase is returned when a query arrives before any database
// has been activated.
var ErrNoActiveDatabase = errors.New("no active database")

// terminal reports whether an error must abort the run instead of feeding
// refinement: config, connection, model outage, stale context, busy session
// and ambiguous corrections are not recoverable by regenerating SQL.
func terminal(err error) bool {
	if err == nil {
		return false
	}
	if db.Terminal(err) {
		return true
	}
	if errors.Is(err, model.ErrUnavailable) {
		return true
	}
	var stale *StaleContextError
	if errors.As(err, &stale) {
		return true
	}
	var busy *session.BusyError
	if errors.As(err, &busy) {
		return true
	}
	var ambiguous *autocorrect.AmbiguousError
	return errors.As(err, &ambiguous)
}

// Package model defines the language-model capability the pipeline consumes:
// generate SQL, classify intent, diagnose failures. Providers are
// interchangeable behind the Client interface so the state machine stays
// deterministic under a fake implementation.
package model

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable marks a model-capability failure (network, auth, provider
// outage). It aborts the current state transition; the pipeline never
// retries it.
var ErrUnavailable = errors.New("model unavailable")

// IntentKind is the closed set of query classifications.
type IntentKind string

const (
	IntentLookup      IntentKind = "lookup"
	IntentAggregate   IntentKind = "aggregate"
	IntentRelational  IntentKind = "relational"
	IntentUnsupported IntentKind = "unsupported"
)

// Intent is a classification verdict.
type Intent struct {
	Kind       IntentKind
	Confidence float64
}

// GenerateRequest carries everything SQL generation needs. TableHints maps
// entity values to the table most likely holding them. PriorSQL and
// Diagnosis are set on refinement entries only.
type GenerateRequest struct {
	Query      string
	Schema     string
	Entities   map[string]string
	TableHints map[string]string
	Dialect    string
	PriorSQL   string
	Diagnosis  string
}

// Client is the synchronous model capability. Implementations own their HTTP
// timeout; callers additionally bound each call with a context deadline.
type Client interface {
	GenerateSQL(ctx context.Context, req GenerateRequest) (string, error)
	ClassifyIntent(ctx context.Context, query string) (Intent, error)
	DiagnoseError(ctx context.Context, sql, errText, schema string) (string, error)
}

// CleanSQL strips markdown fences and prompt echoes from a model response
// and normalizes the trailing semicolon.
func CleanSQL(response string) string {
	for _, pattern := range []string{"```sql", "```", "SQL:", "Query:", "SQLQuery:"} {
		response = strings.ReplaceAll(response, pattern, "")
	}
	response = strings.TrimSpace(response)
	response = strings.TrimRight(response, ";")
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}
	return response + ";"
}

// ParseIntentKind maps free-form model output onto the closed intent set.
func ParseIntentKind(s string) IntentKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lookup", "select", "list":
		return IntentLookup
	case "aggregate", "aggregation", "count", "sum":
		return IntentAggregate
	case "relational", "join":
		return IntentRelational
	default:
		return IntentUnsupported
	}
}

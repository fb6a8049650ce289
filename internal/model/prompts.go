package model

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// PROMPT BUILDERS
// =============================================================================

// BuildGeneratePrompt renders the SQL-generation prompt. On refinement
// entries the prior SQL and the failure diagnosis are appended so the model
// produces a different statement instead of repeating itself.
func BuildGeneratePrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s engineer. Write a single SQL query answering the question below.\n\n", dialectLabel(req.Dialect))
	b.WriteString("Database schema:\n")
	b.WriteString(req.Schema)
	b.WriteString("\n")

	if len(req.Entities) > 0 {
		b.WriteString("\nResolved values (use these literal values in WHERE clauses):\n")
		keys := make([]string, 0, len(req.Entities))
		for k := range req.Entities {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s -> %s\n", k, req.Entities[k])
		}
	}

	if len(req.TableHints) > 0 {
		b.WriteString("\nLikely tables for the values above:\n")
		keys := make([]string, 0, len(req.TableHints))
		for k := range req.TableHints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s -> %s\n", k, req.TableHints[k])
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Query)

	if req.PriorSQL != "" {
		fmt.Fprintf(&b, "\nYour previous attempt failed:\n%s\n", req.PriorSQL)
		if req.Diagnosis != "" {
			fmt.Fprintf(&b, "Diagnosis: %s\n", req.Diagnosis)
		}
		b.WriteString("Write a corrected query. Do not repeat the failed statement.\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Use only tables and columns that appear in the schema above.\n")
	b.WriteString("- Return only the SQL statement, no explanation and no markdown.\n")
	fmt.Fprintf(&b, "- Target dialect: %s.\n", dialectLabel(req.Dialect))
	return b.String()
}

// BuildIntentPrompt renders the intent-classification prompt. The model is
// asked for a bare JSON object so the answer parses without scraping.
func BuildIntentPrompt(query string) string {
	return fmt.Sprintf(`Classify the database question below into exactly one category:
- lookup: retrieve rows matching a condition
- aggregate: count, sum, average, min/max or grouped totals
- relational: answers requiring joins across tables
- unsupported: not answerable with a SQL query over tabular data

Question: %s

Answer with a JSON object only, no prose:
{"kind": "<category>", "confidence": <0.0-1.0>}`, query)
}

// BuildDiagnosisPrompt renders the error-analysis prompt used on the refine
// path. The answer feeds back into the next generation prompt verbatim.
func BuildDiagnosisPrompt(sql, errText, schema string) string {
	return fmt.Sprintf(`A SQL query failed. Explain in one or two sentences what is wrong and how to fix it.

Schema:
%s

Query:
%s

Error:
%s

Respond with the diagnosis only.`, schema, sql, errText)
}

func dialectLabel(dialect string) string {
	switch strings.ToLower(dialect) {
	case "postgresql", "postgres":
		return "PostgreSQL"
	case "vertica":
		return "Vertica"
	case "sqlite":
		return "SQLite"
	default:
		return "SQL"
	}
}

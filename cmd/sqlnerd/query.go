package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sqlnerd/internal/db"
	"sqlnerd/internal/pipeline"
)

var queryDatabase string

// queryCmd runs one natural-language question through the pipeline.
var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a natural-language question with SQL",
	Long: `Runs a question through the full pipeline: intent classification,
entity extraction, autocorrection against database content, SQL generation,
static validation, execution, and diagnosed refinement on failure.

Example:
  sqlnerd query --db sales "Show me customers named Steve Muray"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryDatabase, "db", "", "database to query (defaults to the switched-to database)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")
	if queryDatabase == "" {
		queryDatabase = readCurrentName()
	}
	if queryDatabase == "" {
		return fmt.Errorf("no database selected: pass --db or run 'sqlnerd switch <name>'")
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.sessions.Switch(ctx, queryDatabase); err != nil {
		return err
	}

	summary, err := a.engine.Run(ctx, question)
	if err != nil {
		return err
	}
	printSummary(summary)
	if !summary.Success {
		os.Exit(1)
	}
	return nil
}

func printSummary(s *pipeline.Summary) {
	for _, c := range s.Corrections {
		fmt.Printf("corrected %q -> %q (%.0f%% confidence, %s.%s)\n",
			c.Original, c.Corrected, c.Score*100, c.Table, c.Column)
	}
	if s.SQL != "" {
		fmt.Printf("SQL: %s\n", s.SQL)
	}
	if !s.Success {
		fmt.Printf("failed after %d attempt(s): %s\n", s.Attempts, s.Message)
		return
	}
	if s.Attempts > 1 {
		fmt.Printf("succeeded on attempt %d\n", s.Attempts)
	}
	printResult(s.Result)
}

func printResult(r *db.QueryResult) {
	if r == nil {
		return
	}
	if len(r.Columns) == 0 {
		fmt.Printf("%d row(s) affected\n", r.RowsAffected)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	fmt.Printf("%d row(s)\n", len(r.Rows))
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// currentNamePath stores the switched-to database name between invocations.
func currentNamePath() string {
	return filepath.Join(workspace, ".sqlnerd", "current")
}

func readCurrentName() string {
	data, err := os.ReadFile(currentNamePath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeCurrentName(name string) error {
	path := currentNamePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(name+"\n"), 0644)
}

// databasesCmd lists registered connections.
var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List registered databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		current := readCurrentName()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tDATABASE")
		for _, c := range a.registry.All() {
			marker := ""
			if c.Name == current {
				marker = " *"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", c.Name, marker, c.Kind, c.Database)
		}
		return w.Flush()
	},
}

// switchCmd activates a database after validating it.
var switchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Switch the active database",
	Long: `Connects to the named database, validates it, and makes it the
default for subsequent queries. On failure the previous selection is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		name := args[0]
		if err := a.sessions.Switch(cmd.Context(), name); err != nil {
			return err
		}
		if err := writeCurrentName(name); err != nil {
			return err
		}
		fmt.Printf("switched to %q\n", name)
		return nil
	},
}

// validateCmd checks a database without activating it.
var validateCmd = &cobra.Command{
	Use:   "validate [name]",
	Short: "Validate a registered database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		v, err := a.sessions.Validate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !v.Valid {
			fmt.Printf("invalid: %s\n", v.Error)
			os.Exit(1)
		}
		fmt.Printf("valid: %d tables, ~%d bytes\n", v.TableCount, v.SizeEstimate)
		for _, t := range v.SampleTables {
			fmt.Printf("  %s (%d rows)\n", t.Name, t.RowCount)
		}
		return nil
	},
}

// currentCmd prints the active database selection.
var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active database",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := readCurrentName()
		if name == "" {
			fmt.Println("no database selected")
			return nil
		}
		fmt.Println(name)
		return nil
	},
}

// mistakesCmd reports the most frequent accepted corrections.
var mistakesCmd = &cobra.Command{
	Use:   "mistakes",
	Short: "Show the most frequently corrected misspellings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		top := a.history.TopMistakes(10)
		if len(top) == 0 {
			fmt.Println("no corrections recorded yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPED\tCORRECTED\tCOUNT")
		for _, m := range top {
			fmt.Fprintf(w, "%s\t%s\t%d\n", m.Original, m.Corrected, m.Count)
		}
		return w.Flush()
	},
}

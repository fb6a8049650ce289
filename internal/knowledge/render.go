package knowledge

import (
	"fmt"
	"strings"
)

// SchemaText renders the snapshot as the compact text block fed to the
// model: one line per table, columns with types, key markers, then declared
// and inferred relationships.
func (b *Base) SchemaText() string {
	snap, _ := b.Snapshot()
	if snap == nil {
		return ""
	}

	var sb strings.Builder
	for _, table := range snap.Tables {
		fmt.Fprintf(&sb, "TABLE %s (%d rows)\n", table.Name, table.RowCount)
		for _, col := range table.Columns {
			var marks []string
			if col.PrimaryKey {
				marks = append(marks, "PK")
			}
			if !col.Nullable {
				marks = append(marks, "NOT NULL")
			}
			suffix := ""
			if len(marks) > 0 {
				suffix = " " + strings.Join(marks, " ")
			}
			fmt.Fprintf(&sb, "  %s %s%s\n", col.Name, col.Type, suffix)
		}
		for _, fk := range table.ForeignKeys {
			label := "FK"
			if fk.Type == "implicit" {
				label = "FK (inferred)"
			}
			fmt.Fprintf(&sb, "  %s: %s -> %s.%s\n", label, fk.Column, fk.RefTable, fk.RefColumn)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

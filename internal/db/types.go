package db

import "strings"

// Column describes one column of an introspected table.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// ForeignKey links a column to the table/column it references. Type is
// "declared" for catalog-level constraints and "implicit" for links inferred
// from naming patterns (CustomerId in Invoice -> Customer.CustomerId).
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
	Type      string
}

// Table is one table of a SchemaSnapshot.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
	RowCount    int64
}

// Column returns the named column, matched case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// SchemaSnapshot is the normalized view of one database's schema, shared by
// every engine variant. A snapshot belongs to exactly one connection
// generation; the knowledge base pairs it with a version tag.
type SchemaSnapshot struct {
	Kind   Kind
	Schema string
	Tables []Table
}

// Table returns the named table, matched case-insensitively.
func (s *SchemaSnapshot) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// TableNames lists all table names in snapshot order.
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i := range s.Tables {
		names[i] = s.Tables[i].Name
	}
	return names
}

// IsTextType reports whether a column type stores text, across dialects.
func IsTextType(colType string) bool {
	t := strings.ToUpper(colType)
	return strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") ||
		strings.Contains(t, "STRING") || strings.Contains(t, "CLOB")
}

// IsNumericType reports whether a column type is numeric, across dialects.
func IsNumericType(colType string) bool {
	t := strings.ToUpper(colType)
	for _, n := range []string{"INT", "REAL", "FLOAT", "DOUBLE", "NUMERIC", "DECIMAL", "MONEY", "SERIAL"} {
		if strings.Contains(t, n) {
			return true
		}
	}
	return false
}

// QueryResult is the immutable outcome of a successful Execute call.
type QueryResult struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
}

// InferImplicitKeys appends name-pattern foreign keys to every table: a
// column named like <OtherTable>Id (or <other_table>_id) that is not already
// a declared key is linked to the matching table's primary key.
func (s *SchemaSnapshot) InferImplicitKeys() {
	for i := range s.Tables {
		t := &s.Tables[i]
		for _, c := range t.Columns {
			lc := strings.ToLower(c.Name)
			if !strings.HasSuffix(lc, "id") || c.PrimaryKey {
				continue
			}
			base := strings.TrimSuffix(strings.TrimSuffix(lc, "id"), "_")
			if base == "" {
				continue
			}
			for j := range s.Tables {
				if i == j {
					continue
				}
				ref := &s.Tables[j]
				if strings.ToLower(ref.Name) != base && strings.ToLower(ref.Name) != base+"s" {
					continue
				}
				if t.hasKeyFor(c.Name) {
					continue
				}
				refCol := c.Name
				if pk := ref.primaryKey(); pk != "" {
					refCol = pk
				}
				t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
					Column:    c.Name,
					RefTable:  ref.Name,
					RefColumn: refCol,
					Type:      "implicit",
				})
			}
		}
	}
}

func (t *Table) hasKeyFor(column string) bool {
	for _, fk := range t.ForeignKeys {
		if strings.EqualFold(fk.Column, column) {
			return true
		}
	}
	return false
}

func (t *Table) primaryKey() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"sqlnerd/internal/db"
)

// verdict is the outcome of static validation.
type verdict struct {
	OK      bool
	Kind    db.ErrorKind
	Message string
}

var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"not": true, "in": true, "like": true, "between": true, "is": true,
	"null": true, "as": true, "on": true, "join": true, "inner": true,
	"left": true, "right": true, "full": true, "outer": true, "cross": true,
	"group": true, "by": true, "order": true, "having": true, "limit": true,
	"offset": true, "asc": true, "desc": true, "distinct": true, "union": true,
	"all": true, "case": true, "when": true, "then": true, "else": true,
	"end": true, "exists": true, "with": true, "insert": true, "into": true,
	"values": true, "update": true, "set": true, "delete": true, "cast": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"coalesce": true, "lower": true, "upper": true, "length": true,
	"substr": true, "substring": true, "round": true, "abs": true,
	"true": true, "false": true, "top": true, "using": true,
}

var (
	tableRefRe   = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?(\w+)"?`)
	identifierRe = regexp.MustCompile(`"?\b([A-Za-z_]\w*)\b"?`)
	stringCmpRe  = regexp.MustCompile(`(?i)"?\b([A-Za-z_]\w*)\b"?\s*(?:=|<>|!=|<=|>=|<|>|\bLIKE\b)\s*'`)
	aliasRe      = regexp.MustCompile(`(?i)\bas\s+"?(\w+)"?`)
	tableAliasRe = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?\w+"?\s+(?:as\s+)?"?([A-Za-z_]\w*)"?`)
	literalRe    = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// validate statically checks a statement against the schema snapshot:
// referenced tables and columns must exist, and columns compared against
// string literals must be text-typed. It never touches the database.
func validate(snap *db.SchemaSnapshot, sqlText string) verdict {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return verdict{Kind: db.ErrSyntax, Message: "empty statement"}
	}
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		return verdict{Kind: db.ErrSyntax, Message: "unbalanced parentheses"}
	}

	// Strip string literals so their content is not mistaken for
	// identifiers. Type checks run against the original text.
	stripped := literalRe.ReplaceAllString(trimmed, "''")

	// Referenced tables must exist.
	var refTables []*db.Table
	for _, m := range tableRefRe.FindAllStringSubmatch(stripped, -1) {
		name := m[1]
		t, ok := snap.Table(name)
		if !ok {
			return verdict{
				Kind:    db.ErrSchema,
				Message: fmt.Sprintf("unknown table %q", name),
			}
		}
		refTables = append(refTables, t)
	}
	if len(refTables) == 0 {
		// Statements without a FROM clause (SELECT 1, PRAGMA) pass.
		return verdict{OK: true}
	}

	known := func(name string) bool {
		for _, t := range refTables {
			if _, ok := t.Column(name); ok {
				return true
			}
		}
		return false
	}

	aliases := map[string]bool{}
	for _, m := range aliasRe.FindAllStringSubmatch(stripped, -1) {
		aliases[strings.ToLower(m[1])] = true
	}
	for _, m := range tableAliasRe.FindAllStringSubmatch(stripped, -1) {
		if !sqlKeywords[strings.ToLower(m[1])] {
			aliases[strings.ToLower(m[1])] = true
		}
	}
	for _, t := range refTables {
		aliases[strings.ToLower(t.Name)] = true
	}

	for _, m := range identifierRe.FindAllStringSubmatch(stripped, -1) {
		word := m[1]
		lower := strings.ToLower(word)
		if sqlKeywords[lower] || aliases[lower] || known(word) {
			continue
		}
		if _, ok := snap.Table(word); ok {
			continue // qualified reference, table checked above
		}
		return verdict{
			Kind:    db.ErrSchema,
			Message: fmt.Sprintf("unknown column %q", word),
		}
	}

	// A numeric column compared against a string literal will fail or
	// silently coerce at execution time; flag it here.
	for _, m := range stringCmpRe.FindAllStringSubmatch(trimmed, -1) {
		name := m[1]
		for _, t := range refTables {
			if col, ok := t.Column(name); ok && db.IsNumericType(col.Type) {
				return verdict{
					Kind:    db.ErrSchema,
					Message: fmt.Sprintf("column %q is %s but compared against a string literal", name, col.Type),
				}
			}
		}
	}
	return verdict{OK: true}
}

package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Entity role keys. Repeated roles get a numeric suffix (name, name_2, ...).
const (
	roleName   = "name"
	roleNumber = "number"
	roleDate   = "date"
	roleQuoted = "value"
)

var (
	dateRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	numberRe = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	quotedRe = regexp.MustCompile(`'([^']+)'|"([^"]+)"`)
)

var entityStopWords = map[string]bool{
	"show": true, "list": true, "find": true, "get": true, "give": true,
	"select": true, "count": true, "how": true, "what": true, "which": true,
	"who": true, "where": true, "when": true, "all": true, "the": true,
	"every": true, "each": true, "many": true, "much": true, "me": true,
	"total": true, "average": true, "sum": true, "number": true,
}

// extractEntities pulls literal values out of the question as a flat
// role -> value mapping: quoted strings, ISO dates, numbers, and runs of
// capitalized words (likely proper names). Sentence-initial capitals are
// ignored.
func extractEntities(query string) map[string]string {
	entities := map[string]string{}
	put := func(role, value string) {
		if _, taken := entities[role]; !taken {
			entities[role] = value
			return
		}
		for i := 2; ; i++ {
			k := fmt.Sprintf("%s_%d", role, i)
			if _, taken := entities[k]; !taken {
				entities[k] = value
				return
			}
		}
	}

	rest := query
	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		put(roleQuoted, v)
		rest = strings.Replace(rest, m[0], " ", 1)
	}
	for _, d := range dateRe.FindAllString(rest, -1) {
		put(roleDate, d)
		rest = strings.Replace(rest, d, " ", 1)
	}
	for _, n := range numberRe.FindAllString(rest, -1) {
		put(roleNumber, n)
	}

	words := strings.FieldsFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	var run []string
	flush := func() {
		if len(run) > 0 {
			put(roleName, strings.Join(run, " "))
			run = nil
		}
	}
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && unicode.IsUpper([]rune(w)[0]) && !entityStopWords[lower] {
			run = append(run, w)
		} else {
			flush()
		}
	}
	flush()
	return entities
}

// nameEntityCount counts name-role entities, used by the zero-row fallback.
func nameEntityCount(entities map[string]string) int {
	n := 0
	for role := range entities {
		if role == roleName || strings.HasPrefix(role, roleName+"_") {
			n++
		}
	}
	return n
}

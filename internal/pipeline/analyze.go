package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"sqlnerd/internal/db"
)

// diagnosis is what ANALYZE_ERROR hands to REFINE.
type diagnosis struct {
	Kind db.ErrorKind
	Raw  string
	Hint string
}

func (d diagnosis) text() string {
	if d.Hint == "" {
		return d.Raw
	}
	return d.Raw + " (" + d.Hint + ")"
}

// Identifier extraction from engine error messages. Each engine words its
// unknown-identifier errors differently.
var unknownIdentRes = []*regexp.Regexp{
	regexp.MustCompile(`no such table: (\w+)`),
	regexp.MustCompile(`no such column: ([\w.]+)`),
	regexp.MustCompile(`relation "(\w+)" does not exist`),
	regexp.MustCompile(`column "([\w.]+)" does not exist`),
	regexp.MustCompile(`[Tt]able "?(\w+)"? does not exist`),
	regexp.MustCompile(`unknown (?:table|column) "?([\w.]+)"?`),
}

// analyze classifies an execution or validation failure and derives a hint
// naming the closest real identifier when an unknown one can be extracted.
func analyze(snap *db.SchemaSnapshot, kind db.ErrorKind, raw string) diagnosis {
	d := diagnosis{Kind: kind, Raw: raw}
	if kind != db.ErrSchema || snap == nil {
		return d
	}

	ident := extractUnknownIdent(raw)
	if ident == "" {
		return d
	}
	if closest := closestIdentifier(snap, ident); closest != "" {
		d.Hint = fmt.Sprintf("%q not found, closest match is %q", ident, closest)
	}
	return d
}

func extractUnknownIdent(raw string) string {
	for _, re := range unknownIdentRes {
		if m := re.FindStringSubmatch(raw); m != nil {
			ident := m[1]
			// Keep the column part of a qualified name.
			if i := strings.LastIndexByte(ident, '.'); i >= 0 {
				ident = ident[i+1:]
			}
			return ident
		}
	}
	return ""
}

// closestIdentifier ranks every table and column name against the unknown
// identifier and returns the best fuzzy match.
func closestIdentifier(snap *db.SchemaSnapshot, ident string) string {
	var names []string
	for _, t := range snap.Tables {
		names = append(names, t.Name)
		for _, c := range t.Columns {
			names = append(names, c.Name)
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(ident, names)
	if len(ranks) > 0 {
		best := ranks[0]
		for _, r := range ranks[1:] {
			if r.Distance < best.Distance {
				best = r
			}
		}
		return best.Target
	}

	// Nothing fuzzy-matched; fall back to shortest edit distance.
	best, bestDist := "", -1
	for _, name := range names {
		d := fuzzy.LevenshteinDistance(strings.ToLower(ident), strings.ToLower(name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	if bestDist >= 0 && bestDist <= len(ident) {
		return best
	}
	return ""
}

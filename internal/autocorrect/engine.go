package autocorrect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"sqlnerd/internal/logging"
)

// Candidate is one known database value a token may be corrected to.
type Candidate struct {
	Value  string
	Table  string
	Column string
	// Refs counts how often the column was referenced by past successful
	// queries. Used only to break score ties.
	Refs int
}

// ContentSource supplies candidate values for a token. Implemented by the
// knowledge base; tests supply a map-backed fake.
type ContentSource interface {
	LookupSimilar(ctx context.Context, token string) ([]Candidate, error)
}

// Correction records one applied substitution.
type Correction struct {
	Original  string  `json:"original"`
	Corrected string  `json:"corrected"`
	Table     string  `json:"table"`
	Column    string  `json:"column"`
	Score     float64 `json:"score"`
}

// AmbiguousError reports a token whose best candidates tied and could not be
// separated. The caller decides whether to surface it or fall back.
type AmbiguousError struct {
	Token      string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	values := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		values[i] = c.Value
	}
	return fmt.Sprintf("ambiguous correction for %q: candidates %s", e.Token, strings.Join(values, ", "))
}

// Engine corrects entity-like tokens in a query against database content.
type Engine struct {
	source  ContentSource
	history *History
}

// NewEngine creates an engine. history may be nil.
func NewEngine(source ContentSource, history *History) *Engine {
	return &Engine{source: source, history: history}
}

// filter keywords that introduce an entity value in natural language.
var entityLeadIns = map[string]bool{
	"named": true, "called": true, "name": true,
	"by": true, "for": true, "of": true,
	"from": true, "in": true, "like": true,
}

// stopWords never get corrected even when capitalized (sentence starts).
var stopWords = map[string]bool{
	"show": true, "list": true, "find": true, "get": true, "give": true,
	"select": true, "count": true, "how": true, "what": true, "which": true,
	"who": true, "where": true, "when": true, "all": true, "the": true,
	"every": true, "each": true, "many": true, "much": true, "me": true,
	"total": true, "average": true, "sum": true, "number": true,
}

// extractTokens pulls entity-like tokens from a query: quoted strings first,
// then capitalized words and words following a lead-in keyword. Adjacent
// capitalized words merge into one token ("Jim Murray").
func extractTokens(query string) []string {
	var tokens []string
	rest := query

	// Quoted strings are explicit entity markers.
	for {
		i := strings.IndexAny(rest, `'"`)
		if i < 0 {
			break
		}
		quote := rest[i]
		j := strings.IndexByte(rest[i+1:], quote)
		if j < 0 {
			break
		}
		inner := rest[i+1 : i+1+j]
		if inner != "" {
			tokens = append(tokens, inner)
		}
		rest = rest[:i] + " " + rest[i+1+j+1:]
	}

	words := strings.FieldsFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	// Each word of a multi-word run is also tried alone, since typically
	// only one of them is misspelled.
	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		tokens = append(tokens, strings.Join(run, " "))
		if len(run) > 1 {
			tokens = append(tokens, run...)
		}
		run = nil
	}
	prevLeadIn := false
	for i, w := range words {
		lower := strings.ToLower(w)
		capitalized := unicode.IsUpper([]rune(w)[0]) && !stopWords[lower]
		// Sentence-initial capitals are grammar, not entities.
		if i == 0 {
			capitalized = false
		}
		if capitalized || (prevLeadIn && !stopWords[lower] && !entityLeadIns[lower]) {
			run = append(run, w)
		} else {
			flush()
		}
		prevLeadIn = entityLeadIns[lower]
	}
	flush()
	return tokens
}

// Correct scans the query for entity-like tokens, finds the best matching
// database value for each, and substitutes matches scoring at or above
// Threshold. The corrected query and the list of applied substitutions are
// returned. A tie between distinct top candidates yields an AmbiguousError.
func (e *Engine) Correct(ctx context.Context, query string) (string, []Correction, error) {
	corrected := query
	var applied []Correction

	for _, tok := range extractTokens(query) {
		// A wider token already corrected may have consumed this one.
		if !strings.Contains(corrected, tok) {
			continue
		}
		candidates, err := e.source.LookupSimilar(ctx, tok)
		if err != nil {
			return query, nil, err
		}
		best, err := e.pick(tok, candidates)
		if err != nil {
			return query, nil, err
		}
		if best == nil {
			continue
		}
		if best.Value == tok {
			continue // already exact
		}
		corrected = strings.Replace(corrected, tok, best.Value, 1)
		c := Correction{
			Original:  tok,
			Corrected: best.Value,
			Table:     best.Table,
			Column:    best.Column,
			Score:     e.score(tok, best.Value),
		}
		applied = append(applied, c)
		logging.Autocorrect("corrected %q -> %q (%s.%s, score %.3f)",
			c.Original, c.Corrected, c.Table, c.Column, c.Score)
		if e.history != nil {
			e.history.Record(c)
		}
	}
	return corrected, applied, nil
}

// score is Similarity plus the history boost for previously confirmed pairs.
func (e *Engine) score(token, value string) float64 {
	s := Similarity(token, value)
	if e.history != nil {
		s += e.history.Boost(token, value)
	}
	if s > 1 {
		s = 1
	}
	return s
}

const tieEpsilon = 1e-9

// pick selects the best-scoring candidate at or above Threshold. Score ties
// between distinct values break on column reference frequency; an unbroken
// tie is ambiguous.
func (e *Engine) pick(token string, candidates []Candidate) (*Candidate, error) {
	type scored struct {
		cand  Candidate
		score float64
	}
	var top []scored
	bestScore := 0.0
	for _, c := range candidates {
		s := e.score(token, c.Value)
		if s < Threshold {
			continue
		}
		switch {
		case s > bestScore+tieEpsilon:
			bestScore = s
			top = []scored{{c, s}}
		case s > bestScore-tieEpsilon:
			top = append(top, scored{c, s})
		}
	}
	if len(top) == 0 {
		return nil, nil
	}

	// Same value appearing in several columns is not a conflict.
	distinct := map[string]bool{}
	for _, s := range top {
		distinct[s.cand.Value] = true
	}
	if len(distinct) == 1 {
		return &top[0].cand, nil
	}

	sort.SliceStable(top, func(i, j int) bool { return top[i].cand.Refs > top[j].cand.Refs })
	if top[0].cand.Refs > top[1].cand.Refs {
		return &top[0].cand, nil
	}

	tied := make([]Candidate, len(top))
	for i, s := range top {
		tied[i] = s.cand
	}
	return nil, &AmbiguousError{Token: token, Candidates: tied}
}

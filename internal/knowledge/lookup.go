package knowledge

import (
	"context"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"sqlnerd/internal/autocorrect"
	"sqlnerd/internal/db"
)

// maxCandidatesPerColumn bounds how many fuzzy matches one column may
// contribute to a lookup.
const maxCandidatesPerColumn = 10

// LookupSimilar returns database values resembling the token, drawn from
// sampled text columns. A cheap fuzzy prefilter trims each column's sample
// before the caller runs full similarity scoring. Implements
// autocorrect.ContentSource.
func (b *Base) LookupSimilar(ctx context.Context, token string) ([]autocorrect.Candidate, error) {
	snap, _ := b.Snapshot()
	if snap == nil {
		return nil, nil
	}

	var out []autocorrect.Candidate
	folded := autocorrect.Fold(token)
	for _, table := range snap.Tables {
		for _, col := range table.Columns {
			if !db.IsTextType(col.Type) {
				continue
			}
			// A column holding structured values (emails, urls, dates)
			// cannot correct a token shaped differently.
			if p, err := b.DetectPattern(ctx, table.Name, col.Name); err == nil && !p.Matches(token) {
				continue
			}
			values, err := b.ColumnValues(ctx, table.Name, col.Name)
			if err != nil {
				// One unreadable column must not sink the lookup.
				continue
			}
			matches := prefilter(folded, values)
			for _, v := range matches {
				out = append(out, autocorrect.Candidate{
					Value:  v,
					Table:  table.Name,
					Column: col.Name,
					Refs:   b.refCount(table.Name, col.Name),
				})
			}
		}
	}
	return out, nil
}

// prefilter keeps values that fuzzy-match the folded token, or whose length
// is close enough that an edit-distance match is still possible. Fuzzy
// matching requires the pattern's runes in order, which misses transposed
// misspellings ("Muray" vs "Murray" passes, "Mrray" would too, but
// "Amdahl" vs "Admahl" would not), so the length gate backstops it.
func prefilter(foldedToken string, values []string) []string {
	var out []string
	for _, v := range values {
		if len(out) >= maxCandidatesPerColumn {
			break
		}
		fv := autocorrect.Fold(v)
		if fuzzy.Match(foldedToken, fv) || fuzzy.Match(fv, foldedToken) {
			out = append(out, v)
			continue
		}
		diff := len(fv) - len(foldedToken)
		if diff < 0 {
			diff = -diff
		}
		if diff <= 3 && len(foldedToken) > 2 && fv != "" && fv[0] == foldedToken[0] {
			out = append(out, v)
		}
	}
	return out
}

func (b *Base) refCount(table, column string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.colRefs[columnKey{Table: table, Column: column}]
}

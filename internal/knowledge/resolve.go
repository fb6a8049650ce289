package knowledge

import (
	"context"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"sqlnerd/internal/autocorrect"
)

// ResolveTableForEntity finds the table most likely holding the named
// entity. Content decides first: a sampled value resembling the name, or one
// of its words, pins its table. Failing that, the entity may name a table
// itself, possibly misspelled or singular. Last, a foreign key column named
// after the entity resolves to the table it references.
func (b *Base) ResolveTableForEntity(ctx context.Context, name string) (string, bool) {
	snap, _ := b.Snapshot()
	if snap == nil || strings.TrimSpace(name) == "" {
		return "", false
	}

	probes := []string{name}
	if parts := strings.Fields(name); len(parts) > 1 {
		probes = append(probes, parts...)
	}
	bestTable, bestScore := "", 0.0
	for _, probe := range probes {
		candidates, err := b.LookupSimilar(ctx, probe)
		if err != nil {
			continue
		}
		for _, c := range candidates {
			if s := autocorrect.Similarity(probe, c.Value); s >= autocorrect.Threshold && s > bestScore {
				bestTable, bestScore = c.Table, s
			}
		}
	}
	if bestTable != "" {
		return bestTable, true
	}

	names := make([]string, len(snap.Tables))
	for i, t := range snap.Tables {
		names[i] = t.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(name, names)
	if len(ranks) > 0 {
		best := ranks[0]
		for _, r := range ranks[1:] {
			if r.Distance < best.Distance {
				best = r
			}
		}
		return best.Target, true
	}

	folded := autocorrect.Fold(name)
	for _, t := range snap.Tables {
		for _, fk := range t.ForeignKeys {
			if strings.Contains(autocorrect.Fold(fk.Column), folded) {
				return fk.RefTable, true
			}
		}
	}
	return "", false
}

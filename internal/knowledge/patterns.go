package knowledge

import (
	"context"
	"regexp"
)

// ContentPattern classifies what kind of values a text column holds.
type ContentPattern string

const (
	PatternEmail    ContentPattern = "email"
	PatternPhone    ContentPattern = "phone"
	PatternURL      ContentPattern = "url"
	PatternDate     ContentPattern = "date"
	PatternPostal   ContentPattern = "postal"
	PatternFreeText ContentPattern = "text"
)

var patternRes = []struct {
	pattern ContentPattern
	re      *regexp.Regexp
}{
	{PatternEmail, regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)},
	{PatternURL, regexp.MustCompile(`^https?://\S+$`)},
	{PatternPhone, regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)},
	{PatternDate, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ].*)?$`)},
	{PatternPostal, regexp.MustCompile(`^\d{4,5}(-\d{4})?$`)},
}

// Matches reports whether a single value fits the pattern. Free text accepts
// anything.
func (p ContentPattern) Matches(v string) bool {
	if p == PatternFreeText {
		return true
	}
	for _, pr := range patternRes {
		if pr.pattern == p {
			return pr.re.MatchString(v)
		}
	}
	return true
}

// DetectPattern samples a column and reports the dominant content pattern.
// A pattern wins when more than half the sampled values match it; otherwise
// the column is plain text. Verdicts are cached until the next Rebuild.
func (b *Base) DetectPattern(ctx context.Context, table, column string) (ContentPattern, error) {
	key := columnKey{Table: table, Column: column}
	b.mu.RLock()
	p, ok := b.patterns[key]
	b.mu.RUnlock()
	if ok {
		return p, nil
	}

	values, err := b.ColumnValues(ctx, table, column)
	if err != nil {
		return PatternFreeText, err
	}
	p = classifyValues(values)
	b.mu.Lock()
	b.patterns[key] = p
	b.mu.Unlock()
	return p, nil
}

func classifyValues(values []string) ContentPattern {
	if len(values) == 0 {
		return PatternFreeText
	}
	for _, p := range patternRes {
		matched := 0
		for _, v := range values {
			if p.re.MatchString(v) {
				matched++
			}
		}
		if matched*2 > len(values) {
			return p.pattern
		}
	}
	return PatternFreeText
}

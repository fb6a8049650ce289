package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sqlnerd/internal/autocorrect"
)

func TestExtractEntities(t *testing.T) {
	e := extractEntities(`Show invoices for Steve Murray over 100 since 2024-01-15`)
	assert.Equal(t, "Steve Murray", e["name"])
	assert.Equal(t, "100", e["number"])
	assert.Equal(t, "2024-01-15", e["date"])
}

func TestExtractEntities_Quoted(t *testing.T) {
	e := extractEntities(`customers in 'New York' or "Oslo"`)
	assert.Equal(t, "New York", e["value"])
	assert.Equal(t, "Oslo", e["value_2"])
}

func TestExtractEntities_MultipleNames(t *testing.T) {
	e := extractEntities(`Find Anna Jansen or Steve Murray`)
	assert.Equal(t, "Anna Jansen", e["name"])
	assert.Equal(t, "Steve Murray", e["name_2"])
	assert.Equal(t, 2, nameEntityCount(e))
}

func TestExtractEntities_SentenceInitialCapitalIgnored(t *testing.T) {
	e := extractEntities(`Show me all cities`)
	assert.Empty(t, e)
}

func TestApplyCorrections(t *testing.T) {
	// applyCorrections lives in engine.go but operates on the entity map.
	entities := map[string]string{"name": "Steve Muray"}
	applyCorrections(entities, []autocorrect.Correction{{Original: "Muray", Corrected: "Murray"}})
	assert.Equal(t, "Steve Murray", entities["name"])
}

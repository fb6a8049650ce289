package autocorrect

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RecordAndBoost(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "corrections.json"))
	require.NoError(t, err)

	assert.Zero(t, h.Boost("Muray", "Murray"))

	c := Correction{Original: "Muray", Corrected: "Murray", Table: "customers", Column: "last_name"}
	h.Record(c)
	assert.InDelta(t, 0.05, h.Boost("Muray", "Murray"), 1e-9)

	h.Record(c)
	h.Record(c)
	h.Record(c)
	// Boost is capped so history can never push a bad match over the line
	// on its own.
	assert.InDelta(t, 0.15, h.Boost("Muray", "Murray"), 1e-9)
}

func TestHistory_BoostIsCaseAndDiacriticInsensitive(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "corrections.json"))
	require.NoError(t, err)
	h.Record(Correction{Original: "bjorn", Corrected: "Bjørn"})
	assert.InDelta(t, 0.05, h.Boost("Bjorn", "Bjorn"), 1e-9)
}

func TestHistory_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.json")
	h, err := LoadHistory(path)
	require.NoError(t, err)

	h.Record(Correction{Original: "Muray", Corrected: "Murray"})
	h.Record(Correction{Original: "Muray", Corrected: "Murray"})
	h.Record(Correction{Original: "Osol", Corrected: "Oslo"})
	require.NoError(t, h.Save())

	reloaded, err := LoadHistory(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, reloaded.Boost("Muray", "Murray"), 1e-9)
	assert.InDelta(t, 0.05, reloaded.Boost("Osol", "Oslo"), 1e-9)
}

func TestHistory_TopMistakes(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "corrections.json"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.Record(Correction{Original: "Muray", Corrected: "Murray"})
	}
	h.Record(Correction{Original: "Osol", Corrected: "Oslo"})

	top := h.TopMistakes(10)
	require.Len(t, top, 2)
	assert.Equal(t, "Muray", top[0].Original)
	assert.Equal(t, 3, top[0].Count)

	assert.Len(t, h.TopMistakes(1), 1)
}

func TestHistory_MissingFileIsEmpty(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, h.TopMistakes(5))
}

package autocorrect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"sqlnerd/internal/logging"
)

// historyEntry is one remembered correction pair with its occurrence count.
type historyEntry struct {
	Original  string    `json:"original"`
	Corrected string    `json:"corrected"`
	Table     string    `json:"table"`
	Column    string    `json:"column"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

// History remembers past corrections across runs. Entries only accumulate;
// nothing is ever rewritten or removed, so a pair's count is monotonic.
type History struct {
	mu      sync.Mutex
	path    string
	entries map[string]*historyEntry // keyed original|corrected, folded
}

// HistoryPath returns the corrections file inside a workspace.
func HistoryPath(workspace string) string {
	return filepath.Join(workspace, ".sqlnerd", "corrections.json")
}

// LoadHistory reads the history file. A missing file yields an empty history.
func LoadHistory(path string) (*History, error) {
	h := &History{path: path, entries: map[string]*historyEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, fmt.Errorf("failed to read correction history: %w", err)
	}
	var list []*historyEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse correction history: %w", err)
	}
	for _, e := range list {
		h.entries[historyKey(e.Original, e.Corrected)] = e
	}
	return h, nil
}

func historyKey(original, corrected string) string {
	return Fold(original) + "|" + Fold(corrected)
}

// Record notes an applied correction, creating or incrementing its entry.
func (h *History) Record(c Correction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := historyKey(c.Original, c.Corrected)
	if e, ok := h.entries[key]; ok {
		e.Count++
		e.LastSeen = time.Now()
	} else {
		h.entries[key] = &historyEntry{
			Original:  c.Original,
			Corrected: c.Corrected,
			Table:     c.Table,
			Column:    c.Column,
			Count:     1,
			LastSeen:  time.Now(),
		}
	}
}

// Boost returns the confidence bonus for a previously confirmed pair:
// 0.05 per past occurrence, capped at 0.15.
func (h *History) Boost(original, corrected string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[historyKey(original, corrected)]
	if !ok {
		return 0
	}
	boost := 0.05 * float64(e.Count)
	if boost > 0.15 {
		boost = 0.15
	}
	return boost
}

// Mistake is a frequently corrected misspelling, for reporting.
type Mistake struct {
	Original  string
	Corrected string
	Count     int
}

// TopMistakes returns the n most frequent correction pairs.
func (h *History) TopMistakes(n int) []Mistake {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Mistake, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, Mistake{Original: e.Original, Corrected: e.Corrected, Count: e.Count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.Compare(out[i].Original, out[j].Original) < 0
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Save writes the history to disk atomically (write temp, rename).
func (h *History) Save() error {
	h.mu.Lock()
	list := make([]*historyEntry, 0, len(h.entries))
	for _, e := range h.entries {
		list = append(list, e)
	}
	h.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Original < list[j].Original
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return err
	}
	logging.AutocorrectDebug("saved %d correction history entries", len(list))
	return nil
}

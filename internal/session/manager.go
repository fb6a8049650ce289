// Package session owns the active database connection. Exactly one
// connection is active at a time; switching is atomic and the previous
// connection stays live until its replacement is fully validated.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sqlnerd/internal/config"
	"sqlnerd/internal/db"
	"sqlnerd/internal/knowledge"
	"sqlnerd/internal/logging"
)

// BusyError is returned when a switch is requested while another switch is
// in flight. Callers fail fast instead of queueing.
type BusyError struct {
	Target string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session busy: cannot switch to %q while another switch is in progress", e.Target)
}

// Active bundles everything that belongs to one live connection.
type Active struct {
	Name    string
	Adapter db.Adapter
	Base    *knowledge.Base
}

// Manager tracks the active connection and performs atomic switches. Reads
// of the current connection never block behind a switch; they see either the
// old connection or the new one, never a half-built state.
type Manager struct {
	registry *config.Registry

	mu         sync.RWMutex
	current    *Active
	generation uint64

	switching atomic.Bool
}

// NewManager creates a manager over a connection registry.
func NewManager(registry *config.Registry) *Manager {
	return &Manager{registry: registry}
}

// Generation returns the switch counter. It increments on every successful
// switch; in-flight work captures it to detect that its context went stale.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Current returns the active connection, or nil when none is active.
func (m *Manager) Current() *Active {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// List returns the names of all registered connections.
func (m *Manager) List() []string {
	return m.registry.Names()
}

// Switch activates the named connection: connect, validate, rebuild the
// knowledge base, then swap atomically. On any failure the previous
// connection remains active and untouched. Concurrent switches fail fast
// with BusyError.
func (m *Manager) Switch(ctx context.Context, name string) error {
	if !m.switching.CompareAndSwap(false, true) {
		return &BusyError{Target: name}
	}
	defer m.switching.Store(false)

	cfg, ok := m.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown database %q (registered: %v)", name, m.registry.Names())
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	adapter, err := db.Open(params)
	if err != nil {
		return err
	}
	if err := adapter.Connect(ctx); err != nil {
		return err
	}

	if v := adapter.Validate(ctx); !v.Valid {
		adapter.Close()
		return fmt.Errorf("database %q failed validation: %s", name, v.Error)
	}

	base := knowledge.NewBase(adapter)
	if err := base.Rebuild(ctx); err != nil {
		adapter.Close()
		return fmt.Errorf("schema introspection for %q failed: %w", name, err)
	}
	// Pre-sample content so the first autocorrection pass pays no latency.
	// Warming is best effort; a partial cache fills in lazily.
	if err := base.Warm(ctx); err != nil {
		logging.SessionDebug("content warm-up for %q incomplete: %v", name, err)
	}

	next := &Active{Name: name, Adapter: adapter, Base: base}

	m.mu.Lock()
	prev := m.current
	m.current = next
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Adapter.Close(); err != nil {
			logging.Get(logging.CategorySession).Warn("closing previous connection %q: %v", prev.Name, err)
		}
	}
	logging.Session("switched to %q (generation %d)", name, gen)
	return nil
}

// Validate checks a registered connection without activating it. Validating
// the current connection reuses the live adapter; any other name gets a
// short-lived probe connection.
func (m *Manager) Validate(ctx context.Context, name string) (db.Validation, error) {
	if cur := m.Current(); cur != nil && cur.Name == name {
		return cur.Adapter.Validate(ctx), nil
	}

	cfg, ok := m.registry.Get(name)
	if !ok {
		return db.Validation{}, fmt.Errorf("unknown database %q", name)
	}
	params, err := cfg.Params()
	if err != nil {
		return db.Validation{}, err
	}
	adapter, err := db.Open(params)
	if err != nil {
		return db.Validation{}, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return db.Validation{}, err
	}
	defer adapter.Close()
	return adapter.Validate(ctx), nil
}

// Close shuts down the active connection, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Adapter.Close()
}

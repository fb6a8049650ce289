// Package config holds the registry of named database connections.
// Connections live in .sqlnerd/databases.yaml; the core only ever sees the
// resolved parameter sets, never the storage format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"sqlnerd/internal/db"
)

// ConnectionConfig is the YAML shape of one named connection.
type ConnectionConfig struct {
	Name           string `yaml:"name"`
	Kind           string `yaml:"kind"` // sqlite, postgresql, vertica
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema,omitempty"`
	User           string `yaml:"user,omitempty"`
	Password       string `yaml:"password,omitempty"`
	SSLMode        string `yaml:"ssl_mode,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"` // e.g. "10s"
}

// Params resolves the YAML entry into adapter parameters, validating the
// fields the engine kind requires.
func (c ConnectionConfig) Params() (db.ConnParams, error) {
	kind := db.Kind(c.Kind)
	switch kind {
	case db.KindSQLite, db.KindPostgres, db.KindVertica:
	default:
		return db.ConnParams{}, fmt.Errorf("connection %q: unsupported kind %q", c.Name, c.Kind)
	}
	if c.Database == "" {
		return db.ConnParams{}, fmt.Errorf("connection %q: database is required", c.Name)
	}
	if kind != db.KindSQLite && (c.Host == "" || c.Port == 0) {
		return db.ConnParams{}, fmt.Errorf("connection %q: host and port are required for %s", c.Name, c.Kind)
	}

	var timeout time.Duration
	if c.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.ConnectTimeout)
		if err != nil {
			return db.ConnParams{}, fmt.Errorf("connection %q: bad connect_timeout: %w", c.Name, err)
		}
		timeout = d
	}

	return db.ConnParams{
		Name:           c.Name,
		Kind:           kind,
		Host:           c.Host,
		Port:           c.Port,
		Database:       c.Database,
		Schema:         c.Schema,
		User:           c.User,
		Password:       c.Password,
		SSLMode:        c.SSLMode,
		ConnectTimeout: timeout,
	}, nil
}

type registryFile struct {
	Databases []ConnectionConfig `yaml:"databases"`
}

// Registry is the loaded set of named connections. Safe for concurrent use;
// Reload swaps the whole map atomically under the lock.
type Registry struct {
	mu    sync.RWMutex
	path  string
	conns map[string]ConnectionConfig
}

// RegistryPath returns the databases file path inside a workspace.
func RegistryPath(workspace string) string {
	return filepath.Join(workspace, ".sqlnerd", "databases.yaml")
}

// LoadRegistry reads the registry file. A missing file yields an empty
// registry, not an error.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, conns: map[string]ConnectionConfig{}}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file from disk.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.conns = map[string]ConnectionConfig{}
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read registry: %w", err)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("failed to parse registry: %w", err)
	}

	conns := make(map[string]ConnectionConfig, len(rf.Databases))
	for _, c := range rf.Databases {
		if c.Name == "" {
			return fmt.Errorf("registry entry without a name")
		}
		if _, dup := conns[c.Name]; dup {
			return fmt.Errorf("duplicate connection name %q", c.Name)
		}
		conns[c.Name] = c
	}

	r.mu.Lock()
	r.conns = conns
	r.mu.Unlock()
	return nil
}

// Get returns the named connection.
func (r *Registry) Get(name string) (ConnectionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[name]
	return c, ok
}

// Names lists all connection names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every connection, sorted by name.
func (r *Registry) All() []ConnectionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnectionConfig, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

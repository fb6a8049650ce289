package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlnerd/internal/db"
)

const sampleRegistry = `databases:
  - name: chinook
    kind: sqlite
    database: /data/chinook.db
  - name: warehouse
    kind: postgresql
    host: db.internal
    port: 5432
    database: warehouse
    schema: analytics
    user: reader
    password: secret
    ssl_mode: require
    connect_timeout: 5s
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "databases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	r, err := LoadRegistry(writeRegistry(t, sampleRegistry))
	require.NoError(t, err)

	assert.Equal(t, []string{"chinook", "warehouse"}, r.Names())

	wh, ok := r.Get("warehouse")
	require.True(t, ok)
	params, err := wh.Params()
	require.NoError(t, err)

	want := db.ConnParams{
		Name:           "warehouse",
		Kind:           db.KindPostgres,
		Host:           "db.internal",
		Port:           5432,
		Database:       "warehouse",
		Schema:         "analytics",
		User:           "reader",
		Password:       "secret",
		SSLMode:        "require",
		ConnectTimeout: 5 * time.Second,
	}
	if diff := cmp.Diff(want, params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRegistry_MissingFileIsEmpty(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}

func TestLoadRegistry_DuplicateName(t *testing.T) {
	_, err := LoadRegistry(writeRegistry(t, `databases:
  - name: one
    kind: sqlite
    database: /a.db
  - name: one
    kind: sqlite
    database: /b.db
`))
	assert.ErrorContains(t, err, "duplicate")
}

func TestParams_Validation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ConnectionConfig
		wantErr string
	}{
		{
			name:    "unknown kind",
			cfg:     ConnectionConfig{Name: "x", Kind: "oracle", Database: "db"},
			wantErr: "unsupported kind",
		},
		{
			name:    "missing database",
			cfg:     ConnectionConfig{Name: "x", Kind: "sqlite"},
			wantErr: "database is required",
		},
		{
			name:    "postgres without host",
			cfg:     ConnectionConfig{Name: "x", Kind: "postgresql", Database: "db"},
			wantErr: "host and port",
		},
		{
			name:    "vertica without port",
			cfg:     ConnectionConfig{Name: "x", Kind: "vertica", Host: "h", Database: "db"},
			wantErr: "host and port",
		},
		{
			name:    "bad timeout",
			cfg:     ConnectionConfig{Name: "x", Kind: "sqlite", Database: "db", ConnectTimeout: "soon"},
			wantErr: "connect_timeout",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.Params()
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	// sqlite needs no host/port at all.
	_, err := ConnectionConfig{Name: "x", Kind: "sqlite", Database: "/a.db"}.Params()
	assert.NoError(t, err)
}

func TestReload_PicksUpChanges(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	r, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, r.Names(), 2)

	require.NoError(t, os.WriteFile(path, []byte(`databases:
  - name: only
    kind: sqlite
    database: /only.db
`), 0644))
	require.NoError(t, r.Reload())
	assert.Equal(t, []string{"only"}, r.Names())
}

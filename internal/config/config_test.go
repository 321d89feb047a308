package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "Bengine", cfg.Title)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.GetDriver())
	assert.Equal(t, "./bengine.db", cfg.Store.GetDSN())
	assert.Equal(t, "./content", cfg.Content.GetDir())
	assert.True(t, cfg.Content.WatchEnabled())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bengine.yaml")
	data := `title: My Site
server:
  host: 0.0.0.0
  port: 2020
engine:
  block_limit: 32
  mode: qengine
  auto_save: true
store:
  driver: postgres
  dsn: postgres://localhost/bengine
content:
  dir: /srv/content
  watch: false
api:
  cors:
    origins: ["https://example.com"]
  rate_limit:
    requests_per_second: 5
    burst: 10
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "My Site", cfg.Title)
	assert.Equal(t, 2020, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.GetDriver())
	assert.Equal(t, "/srv/content", cfg.Content.GetDir())
	assert.False(t, cfg.Content.WatchEnabled())
	assert.Equal(t, []string{"https://example.com"}, cfg.API.GetCORSOrigins())
	assert.Equal(t, float64(5), cfg.API.GetRateLimitRPS())
	assert.Equal(t, 10, cfg.API.GetRateLimitBurst())

	opts := cfg.Engine.EngineOptions()
	assert.Equal(t, 32, opts.BlockLimit)
	assert.Equal(t, "qengine", opts.Mode)
	assert.True(t, opts.EnableAutoSave)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bng.yaml"),
		[]byte("title: Short Name\n"), 0o644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Short Name", cfg.Title)

	// bengine.yaml takes precedence when both exist
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bengine.yaml"),
		[]byte("title: Long Name\n"), 0o644))
	cfg, err = LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Long Name", cfg.Title)
}

func TestLoadFromDirEmpty(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "Bengine", cfg.Title)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bengine.yaml")
	cfg := DefaultConfig()
	cfg.Server.Port = 9999
	cfg.Engine.BlockLimit = 8

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, 8, loaded.Engine.BlockLimit)
}

func TestStoreDSNExpandsEnv(t *testing.T) {
	t.Setenv("BENGINE_TEST_DB", "/tmp/test.db")
	c := StoreConfig{DSN: "$BENGINE_TEST_DB"}
	assert.Equal(t, "/tmp/test.db", c.GetDSN())
}

func TestAPIConfigNilDefaults(t *testing.T) {
	var c *APIConfig
	assert.Nil(t, c.GetCORSOrigins())
	assert.Equal(t, float64(10), c.GetRateLimitRPS())
	assert.Equal(t, 20, c.GetRateLimitBurst())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "127.0.0.1:8090", cfg.ListenAddr)
	assert.Equal(t, "dev", cfg.Version)
	assert.Contains(t, cfg.PrecacheRoutes, "/offline.html")
}

func TestLoadConfig_FlagsOverrideDefaults(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"app", "-l", "0.0.0.0:9000", "-v", "2026.09.1"}

	cfg := LoadConfig()
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "2026.09.1", cfg.Version)
	assert.Equal(t, "http://127.0.0.1:3000", cfg.Origin)
}

func TestLoadConfig_JsonThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"origin": "https://fish.example.com",
		"version": "2026.08.2",
		"precache_routes": ["/", "/offline.html"]
	}`), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"app", "-c", path, "-v", "2026.09.1"}

	cfg := LoadConfig()
	assert.Equal(t, "https://fish.example.com", cfg.Origin)
	assert.Equal(t, "2026.09.1", cfg.Version) // flag beats JSON
	assert.Equal(t, []string{"/", "/offline.html"}, cfg.PrecacheRoutes)
}

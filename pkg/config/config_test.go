package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 10, cfg.Ledger.MinPoints)
	assert.Equal(t, 200, cfg.Ledger.MaxPoints)
	assert.Equal(t, 5, cfg.Ledger.MaxImages)
	assert.Equal(t, 50, cfg.Ledger.WelcomeBonus)
	assert.Equal(t, 2*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, 4, cfg.Catalog.FeaturedSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEDGER_MAX_POINTS", "500")
	t.Setenv("CATALOG_CACHE_TTL", "bogus")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Ledger.MaxPoints)
	assert.Equal(t, 2*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

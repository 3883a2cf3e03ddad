package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 在空目录里运行，避免读到仓库中的 .env
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.AuthTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.AuthChallengeTTL)
	assert.Equal(t, 10000, cfg.GateCacheSize)
	assert.Zero(t, cfg.GateCacheTTL)
	assert.Equal(t, 5.0, cfg.OracleRPS)
	assert.Equal(t, DefaultOpenPaths, cfg.OpenPaths())
}

func TestLoad_Overrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GATE_CACHE_TTL", "30s")
	t.Setenv("GATE_OPEN_PATHS", " /healthz, /public/* ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.GateCacheTTL)
	assert.Equal(t, []string{"/healthz", "/public/*"}, cfg.OpenPaths())
}

func TestLoad_DotEnv(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("AUTH_SECRET=from-file\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("AUTH_SECRET", "")
	os.Unsetenv("AUTH_SECRET")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AuthSecret)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	valid := Config{AuthSecret: "x", StoreDriver: "sqlite", GateCacheSize: 1}
	assert.NoError(t, valid.Validate())

	noSecret := valid
	noSecret.AuthSecret = ""
	assert.Error(t, noSecret.Validate())

	badDriver := valid
	badDriver.StoreDriver = "mongo"
	assert.Error(t, badDriver.Validate())

	noCache := valid
	noCache.GateCacheSize = 0
	assert.Error(t, noCache.Validate())
}

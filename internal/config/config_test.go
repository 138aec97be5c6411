package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"API_BASE_URL", "HTTP_TIMEOUT", "GATEWAY_URL", "GATEWAY_TIMEOUT", "STORAGE_DIR", "CART_DEV_FALLBACK", "FALLBACK_EMAIL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.NotEmpty(t, cfg.Storage.Dir)
	assert.False(t, cfg.Cart.DevFallback)
	assert.Equal(t, "test@buyer.com", cfg.Cart.FallbackEmail)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/api")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("STORAGE_DIR", "/tmp/agromarket-test")
	t.Setenv("CART_DEV_FALLBACK", "true")
	t.Setenv("FALLBACK_EMAIL", "dev@example.com")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, "/tmp/agromarket-test", cfg.Storage.Dir)
	assert.True(t, cfg.Cart.DevFallback)
	assert.Equal(t, "dev@example.com", cfg.Cart.FallbackEmail)
}

func TestLoad_DotenvFile(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	os.Unsetenv("API_BASE_URL")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL=http://envfile:9000/api\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://envfile:9000/api", cfg.API.BaseURL)
}

func TestLoad_MissingDotenvIgnored(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidTimeout(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT")
}

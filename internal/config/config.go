package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the client needs to talk to the marketplace.
// Every field has a working default so `agromarket` runs against a local
// backend with zero setup.
type Config struct {
	API struct {
		BaseURL string
		Timeout time.Duration
	}
	Gateway struct {
		URL     string
		Timeout time.Duration
	}
	Storage struct {
		Dir string
	}
	Cart struct {
		DevFallback   bool
		FallbackEmail string
	}
}

// Load reads an optional .env file, then the environment. A missing .env is
// not an error; a present but broken one is.
func Load(path string) (*Config, error) {
	if path != "" {
		err := godotenv.Load(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{}

	cfg.API.BaseURL = getenv("API_BASE_URL", "http://localhost:8080/api")
	timeout, err := getenvDuration("HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.API.Timeout = timeout

	cfg.Gateway.URL = getenv("GATEWAY_URL", "http://localhost:8080/gateway")
	gatewayTimeout, err := getenvDuration("GATEWAY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Gateway.Timeout = gatewayTimeout

	cfg.Storage.Dir = os.Getenv("STORAGE_DIR")
	if cfg.Storage.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: cannot resolve home directory, set STORAGE_DIR: %w", err)
		}
		cfg.Storage.Dir = filepath.Join(home, ".agromarket")
	}

	cfg.Cart.DevFallback = os.Getenv("CART_DEV_FALLBACK") == "true"
	cfg.Cart.FallbackEmail = getenv("FALLBACK_EMAIL", "test@buyer.com")

	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}

	return value, nil
}

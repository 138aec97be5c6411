package stub

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the stub server's YAML configuration.
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"app"`

	JWT struct {
		Secret string        `yaml:"secret"`
		Expiry time.Duration `yaml:"expiry"`
	} `yaml:"jwt"`

	Gateway struct {
		// PublishableKey is handed out with payment intents. Leave it at the
		// mock sentinel to exercise the client's mock-payment path.
		PublishableKey string `yaml:"publishable_key"`
	} `yaml:"gateway"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// DefaultConfig runs the stub with no file at all: mock gateway key, generous
// rate limit, a fixed local-only JWT secret.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "stubserver"
	cfg.App.Port = 8080
	cfg.JWT.Secret = "local-dev-secret-do-not-deploy"
	cfg.JWT.Expiry = 24 * time.Hour
	cfg.Gateway.PublishableKey = "pk_test_mock_key_for_development"
	cfg.RateLimit.PerSecond = 50
	cfg.RateLimit.Burst = 100

	return cfg
}

// LoadConfig reads a YAML config file, filling gaps with defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stub: failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("stub: invalid config file: %w", err)
	}

	return cfg, nil
}

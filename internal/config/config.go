// Package config loads the application configuration from the environment.
package config

import (
	"encoding/hex"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config is the environment-derived configuration for the demo binary.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"Diet Planner"`

	// IdentityURL is the base URL of the GoTrue-compatible identity
	// service, e.g. "https://<project>.supabase.co/auth/v1".
	IdentityURL string `env:"IDENTITY_URL,required"`
	// IdentityKey is the project's publishable API key.
	IdentityKey string `env:"IDENTITY_ANON_KEY,required"`

	AppScheme string `env:"APP_SCHEME" envDefault:"dietplanner"`

	DeviceStorePath string `env:"DEVICE_STORE_PATH" envDefault:"./data/device.db"`
	// DeviceStoreKey is an optional hex-encoded 32-byte key; when set,
	// device-store values are sealed at rest.
	DeviceStoreKey string `env:"DEVICE_STORE_KEY"`

	RefreshLeeway time.Duration `env:"REFRESH_LEEWAY" envDefault:"30s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`

	// DemoEmail/DemoPassword, when set, make authdemo attempt a password
	// sign-in at startup so the whole pipeline can be observed end to end.
	DemoEmail    string `env:"DEMO_EMAIL"`
	DemoPassword string `env:"DEMO_PASSWORD"`
}

// New parses the configuration from the process environment.
func New() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[config.New] parse environment")
	}
	return cfg, nil
}

// EncryptionKey decodes the optional device-store key. A nil key with a nil
// error means sealing is disabled.
func (c Config) EncryptionKey() ([]byte, error) {
	if c.DeviceStoreKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.DeviceStoreKey)
	if err != nil {
		return nil, errors.Wrap(err, "[EncryptionKey] decode hex key")
	}
	if len(key) != 32 {
		return nil, errors.Errorf("[EncryptionKey] key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

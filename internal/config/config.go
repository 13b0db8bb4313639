package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Weather WeatherConfig
	Storage StorageConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port          int
	AllowedOrigin string
}

type WeatherConfig struct {
	BaseURL     string
	APIKey      string
	DefaultCity string
	Timeout     time.Duration
}

type StorageConfig struct {
	Driver      string
	DataDir     string
	PostgresURL string
}

// SessionConfig holds the base64 encoded securecookie keys. Empty keys are
// generated per process, which invalidates conversation cookies on restart.
type SessionConfig struct {
	HashKey  string
	BlockKey string
}

type LogConfig struct {
	Level string
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Weather: WeatherConfig{
			BaseURL:     "https://api.openweathermap.org/data/2.5",
			DefaultCity: "New York",
			Timeout:     8 * time.Second,
		},
		Storage: StorageConfig{
			Driver:  DriverSQLite,
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.tablevoice.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/tablevoice/config.json
// and secrets come from environment variables or the secrets file.
//
// Environment variables (TABLEVOICE_*) override backend values on all platforms.
// A missing weather API key is not a load error; weather lookups report it.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills empty secret keys from the platform keychain.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.account == "" {
			continue
		}
		if cur, _ := s.extract(*cfg).(string); cur != "" {
			continue
		}
		if v, err := kc.Get("tablevoice", s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func validate(cfg Config) error {
	switch cfg.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.Storage.PostgresURL == "" {
			return fmt.Errorf("missing required config: storage.postgres_url for driver %q. "+
				"Set it via environment variable TABLEVOICE_STORAGE_POSTGRES_URL%s", DriverPostgres, secretHint("postgres_url"))
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want %s or %s)", cfg.Storage.Driver, DriverSQLite, DriverPostgres)
	}

	if cfg.Weather.Timeout <= 0 {
		return fmt.Errorf("weather.timeout must be positive, got %s", cfg.Weather.Timeout)
	}

	for name, v := range map[string]string{"session.hash_key": cfg.Session.HashKey, "session.block_key": cfg.Session.BlockKey} {
		if v == "" {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(v); err != nil {
			return fmt.Errorf("decoding %s: %w", name, err)
		}
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

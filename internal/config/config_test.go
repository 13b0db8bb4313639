package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if v, ok := m.values[account]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]any
}

func newMemBackend(data map[string]any) *memBackend {
	if data == nil {
		data = map[string]any{}
	}
	return &memBackend{data: data}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (b *memBackend) SetString(key, val string) error  { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error          { delete(b.data, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		if s.legacyEnv != "" {
			t.Setenv(s.legacyEnv, "")
		}
	}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Weather.BaseURL != "https://api.openweathermap.org/data/2.5" {
		t.Errorf("Weather.BaseURL = %q", cfg.Weather.BaseURL)
	}
	if cfg.Weather.DefaultCity != "New York" {
		t.Errorf("Weather.DefaultCity = %q, want %q", cfg.Weather.DefaultCity, "New York")
	}
	if cfg.Weather.Timeout != 8*time.Second {
		t.Errorf("Weather.Timeout = %s, want 8s", cfg.Weather.Timeout)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, DriverSQLite)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestMissingWeatherKeyIsNotFatal verifies Load succeeds without a weather API key.
func TestMissingWeatherKeyIsNotFatal(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Weather.APIKey != "" {
		t.Errorf("Weather.APIKey = %q, want empty", cfg.Weather.APIKey)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(map[string]any{
		"server.port":          6000,
		"weather.default_city": "Lisbon",
		"weather.timeout":      "3s",
		"storage.data_dir":     "/tmp/tablevoice-test",
		"log.level":            "debug",
		// secrets never come from the backend
		"weather.api_key": "ignored",
	})

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Weather.DefaultCity != "Lisbon" {
		t.Errorf("Weather.DefaultCity = %q", cfg.Weather.DefaultCity)
	}
	if cfg.Weather.Timeout != 3*time.Second {
		t.Errorf("Weather.Timeout = %s", cfg.Weather.Timeout)
	}
	if cfg.Storage.DataDir != "/tmp/tablevoice-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Weather.APIKey != "" {
		t.Errorf("Weather.APIKey = %q, secrets must not be read from the backend", cfg.Weather.APIKey)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLEVOICE_WEATHER_DEFAULT_CITY", "Paris")
	t.Setenv("TABLEVOICE_WEATHER_API_KEY", "env-key")

	b := newMemBackend(map[string]any{"weather.default_city": "Lisbon"})
	cfg, err := loadWith(b, mockKeychain{values: map[string]string{"weather_api_key": "keychain-key"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Weather.DefaultCity != "Paris" {
		t.Errorf("Weather.DefaultCity = %q, want Paris", cfg.Weather.DefaultCity)
	}
	if cfg.Weather.APIKey != "env-key" {
		t.Errorf("Weather.APIKey = %q, want env-key", cfg.Weather.APIKey)
	}
}

func TestLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENWEATHER_API_KEY", "legacy-key")
	t.Setenv("DEFAULT_CITY", "Berlin")

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Weather.APIKey != "legacy-key" {
		t.Errorf("Weather.APIKey = %q, want legacy-key", cfg.Weather.APIKey)
	}
	if cfg.Weather.DefaultCity != "Berlin" {
		t.Errorf("Weather.DefaultCity = %q, want Berlin", cfg.Weather.DefaultCity)
	}
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLEVOICE_SERVER_PORT", "not-a-port")
	t.Setenv("TABLEVOICE_WEATHER_TIMEOUT", "soon")

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Weather.Timeout != 8*time.Second {
		t.Errorf("Weather.Timeout = %s, want 8s", cfg.Weather.Timeout)
	}
}

// TestKeychainFallback verifies the keychain is consulted when no secret is in env.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	kc := mockKeychain{values: map[string]string{
		"weather_api_key":  "keychain-secret",
		"session_hash_key": "aGFzaC1rZXk=",
	}}
	cfg, err := loadWith(newMemBackend(nil), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Weather.APIKey != "keychain-secret" {
		t.Errorf("Weather.APIKey = %q, want %q", cfg.Weather.APIKey, "keychain-secret")
	}
	if cfg.Session.HashKey != "aGFzaC1rZXk=" {
		t.Errorf("Session.HashKey = %q", cfg.Session.HashKey)
	}
}

func TestPostgresRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLEVOICE_STORAGE_DRIVER", "postgres")

	_, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err == nil {
		t.Fatal("expected error for postgres driver without url, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to contain %q", err, "missing required config")
	}

	t.Setenv("TABLEVOICE_STORAGE_POSTGRES_URL", "postgres://localhost/tablevoice")
	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.PostgresURL != "postgres://localhost/tablevoice" {
		t.Errorf("Storage.PostgresURL = %q", cfg.Storage.PostgresURL)
	}
}

func TestUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLEVOICE_STORAGE_DRIVER", "mongo")

	if _, err := loadWith(newMemBackend(nil), mockKeychain{}); err == nil {
		t.Fatal("expected error for unknown driver, got nil")
	}
}

func TestInvalidSessionKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLEVOICE_SESSION_BLOCK_KEY", "%%%not base64")

	if _, err := loadWith(newMemBackend(nil), mockKeychain{}); err == nil {
		t.Fatal("expected error for undecodable session key, got nil")
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend(nil)

	if err := setKey(b, "server.port", "7000"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if b.data["server.port"] != 7000 {
		t.Errorf("server.port = %v, want 7000", b.data["server.port"])
	}
	if err := setKey(b, "server.port", "seven"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "weather.timeout", "forever"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := setKey(b, "weather.api_key", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Weather.APIKey = "shh"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Key, "api_key") || ki.Value == "shh" {
			t.Errorf("ShowAll exposed secret %s", ki.Key)
		}
	}
	for _, k := range ValidKeys() {
		if k == "weather.api_key" || k == "storage.postgres_url" {
			t.Errorf("ValidKeys includes secret %s", k)
		}
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// legacyEnv is consulted when env is unset.
	legacyEnv string
	// account names the keychain entry for secrets.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TABLEVOICE_SERVER_PORT", legacyEnv: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origin", typ: kString, env: "TABLEVOICE_SERVER_ALLOWED_ORIGIN", legacyEnv: "CLIENT_ORIGIN",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigin = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigin },
	},
	{
		key: "weather.base_url", typ: kString, env: "TABLEVOICE_WEATHER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Weather.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.BaseURL },
	},
	{
		key: "weather.api_key", typ: kString, env: "TABLEVOICE_WEATHER_API_KEY", legacyEnv: "OPENWEATHER_API_KEY",
		secret: true, account: "weather_api_key",
		apply:   func(cfg *Config, v any) { cfg.Weather.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.APIKey },
	},
	{
		key: "weather.default_city", typ: kString, env: "TABLEVOICE_WEATHER_DEFAULT_CITY", legacyEnv: "DEFAULT_CITY",
		apply:   func(cfg *Config, v any) { cfg.Weather.DefaultCity = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.DefaultCity },
	},
	{
		key: "weather.timeout", typ: kDuration, env: "TABLEVOICE_WEATHER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Weather.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Weather.Timeout },
	},
	{
		key: "storage.driver", typ: kString, env: "TABLEVOICE_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TABLEVOICE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.postgres_url", typ: kString, env: "TABLEVOICE_STORAGE_POSTGRES_URL", legacyEnv: "DATABASE_URL",
		secret: true, account: "postgres_url",
		apply:   func(cfg *Config, v any) { cfg.Storage.PostgresURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PostgresURL },
	},
	{
		key: "session.hash_key", typ: kString, env: "TABLEVOICE_SESSION_HASH_KEY",
		secret: true, account: "session_hash_key",
		apply:   func(cfg *Config, v any) { cfg.Session.HashKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.HashKey },
	},
	{
		key: "session.block_key", typ: kString, env: "TABLEVOICE_SESSION_BLOCK_KEY",
		secret: true, account: "session_block_key",
		apply:   func(cfg *Config, v any) { cfg.Session.BlockKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.BlockKey },
	},
	{
		key: "log.level", typ: kString, env: "TABLEVOICE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func lookupEnv(s keySpec) (name, raw string) {
	if raw = os.Getenv(s.env); raw != "" {
		return s.env, raw
	}
	if s.legacyEnv != "" {
		return s.legacyEnv, os.Getenv(s.legacyEnv)
	}
	return s.env, ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}

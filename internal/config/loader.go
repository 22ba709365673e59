package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "weathervane.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "WEATHERVANE_PORT")
	setString(&cfg.Server.CORSOrigin, "WEATHERVANE_CORS_ORIGIN")
	setString(&cfg.Server.AdminToken, "WEATHERVANE_ADMIN_TOKEN")
	setFloat64(&cfg.Server.RateLimitRPS, "WEATHERVANE_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "WEATHERVANE_RATE_LIMIT_BURST")

	setString(&cfg.Weather.APIKey, "WEATHERVANE_API_KEY")
	setString(&cfg.Weather.BaseURL, "WEATHERVANE_API_BASE_URL")
	setFloat64(&cfg.Weather.Latitude, "WEATHERVANE_LATITUDE")
	setFloat64(&cfg.Weather.Longitude, "WEATHERVANE_LONGITUDE")
	setString(&cfg.Weather.CityName, "WEATHERVANE_CITY_NAME")

	setString(&cfg.Cache.Strategy, "WEATHERVANE_CACHE_STRATEGY")
	setInt(&cfg.Cache.UpdateIntervalHrs, "WEATHERVANE_UPDATE_INTERVAL")
	setInt(&cfg.Cache.FallbackHours, "WEATHERVANE_FALLBACK_HOURS")
	setBool(&cfg.Cache.MemoryTier, "WEATHERVANE_MEMORY_TIER")
	setInt64(&cfg.Cache.MemoryMaxSizeMB, "WEATHERVANE_MEMORY_MAX_SIZE_MB")
	setDuration(&cfg.Cache.PromoteTTL, "WEATHERVANE_PROMOTE_TTL")
	setDuration(&cfg.Cache.KVBucketMaxAge, "WEATHERVANE_KV_MAX_AGE")
	setString(&cfg.Cache.TimeZone, "WEATHERVANE_TIME_ZONE")

	setString(&cfg.Janitor.Schedule, "WEATHERVANE_JANITOR_SCHEDULE")
	setInt(&cfg.Janitor.MaxEntries, "WEATHERVANE_JANITOR_MAX_ENTRIES")
	setInt(&cfg.Janitor.ColdAgeDays, "WEATHERVANE_JANITOR_COLD_AGE_DAYS")
	setInt(&cfg.Janitor.ColdMaxHits, "WEATHERVANE_JANITOR_COLD_MAX_HITS")
	setInt(&cfg.Janitor.LogRetentionDays, "WEATHERVANE_JANITOR_LOG_RETENTION_DAYS")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "WEATHERVANE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "WEATHERVANE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "WEATHERVANE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "WEATHERVANE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "WEATHERVANE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "WEATHERVANE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WEATHERVANE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WEATHERVANE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "WEATHERVANE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Cooldown, "WEATHERVANE_BREAKER_COOLDOWN")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// validate checks that required fields are set and ranges hold.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Cache.UpdateIntervalHrs < 1 || cfg.Cache.UpdateIntervalHrs > 24 {
		return errors.New("cache.update_interval must be within 1-24 hours")
	}
	if cfg.Cache.FallbackHours < 1 || cfg.Cache.FallbackHours > 168 {
		return errors.New("cache.fallback_hours must be within 1-168 hours")
	}
	switch cfg.Cache.Strategy {
	case StrategyIntelligent, StrategyAggressive, StrategyConservative, StrategyDisabled:
	default:
		return fmt.Errorf("cache.strategy %q is not recognized", cfg.Cache.Strategy)
	}
	if _, err := time.LoadLocation(cfg.Cache.TimeZone); err != nil {
		return fmt.Errorf("cache.time_zone: %w", err)
	}
	if cfg.Janitor.MaxEntries < 1 {
		return errors.New("janitor.max_entries must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

// Location resolves the configured hour-bucket zone. Call after validation;
// an unparseable zone falls back to UTC.
func (c Cache) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Package config loads editcache settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Provider, codec, gen store and log backend names accepted in Config.
const (
	ProviderMemory    = "memory"
	ProviderFreecache = "freecache"
	ProviderRistretto = "ristretto"
	ProviderBigcache  = "bigcache"
	ProviderRedis     = "redis"

	GenStoreLocal = "local"
	GenStoreRedis = "redis"

	LogSlog   = "slog"
	LogZap    = "zap"
	LogLogrus = "logrus"
)

var (
	providers = []string{ProviderMemory, ProviderFreecache, ProviderRistretto, ProviderBigcache, ProviderRedis}
	codecs    = []string{"json", "cbor", "msgpack"}
	genStores = []string{GenStoreLocal, GenStoreRedis}
	backends  = []string{LogSlog, LogZap, LogLogrus}
	levels    = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	Disabled   bool          `env:"EDITCACHE_DISABLED"`
	DetailTTL  time.Duration `env:"EDITCACHE_DETAIL_TTL"  envDefault:"10s"`
	CatalogTTL time.Duration `env:"EDITCACHE_CATALOG_TTL" envDefault:"20s"`

	Provider        string        `env:"EDITCACHE_PROVIDER"          envDefault:"memory"`
	Codec           string        `env:"EDITCACHE_CODEC"             envDefault:"json"`
	FreecacheSizeMB int           `env:"EDITCACHE_FREECACHE_SIZE_MB" envDefault:"32"`
	RistrettoCostMB int64         `env:"EDITCACHE_RISTRETTO_COST_MB" envDefault:"64"`
	BigcacheMaxMB   int           `env:"EDITCACHE_BIGCACHE_MAX_MB"`
	MaxDecodeBytes  int           `env:"EDITCACHE_MAX_DECODE_BYTES"  envDefault:"4194304"`
	GenStore        string        `env:"EDITCACHE_GEN_STORE"         envDefault:"local"`
	GenTTL          time.Duration `env:"EDITCACHE_GEN_TTL"`

	RedisAddr     string `env:"EDITCACHE_REDIS_ADDR"`
	RedisPassword string `env:"EDITCACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"EDITCACHE_REDIS_DB"`
	RedisPrefix   string `env:"EDITCACHE_REDIS_PREFIX" envDefault:"editcache:"`

	APIBaseURL string        `env:"EDITCACHE_API_BASE_URL"`
	APITimeout time.Duration `env:"EDITCACHE_API_TIMEOUT" envDefault:"15s"`
	APIToken   string        `env:"EDITCACHE_API_TOKEN"`

	LogBackend string `env:"EDITCACHE_LOG_BACKEND" envDefault:"slog"`
	LogLevel   string `env:"EDITCACHE_LOG_LEVEL"   envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c Config) NeedsRedis() bool {
	return c.Provider == ProviderRedis || c.GenStore == GenStoreRedis
}

// Validate rejects values the stores cannot be built from.
func (c Config) Validate() error {
	var errs []error
	if c.DetailTTL <= 0 {
		errs = append(errs, fmt.Errorf("EDITCACHE_DETAIL_TTL must be positive, got %s", c.DetailTTL))
	}
	if c.CatalogTTL <= 0 {
		errs = append(errs, fmt.Errorf("EDITCACHE_CATALOG_TTL must be positive, got %s", c.CatalogTTL))
	}
	if c.APITimeout < 0 {
		errs = append(errs, fmt.Errorf("EDITCACHE_API_TIMEOUT must not be negative, got %s", c.APITimeout))
	}
	if c.GenTTL < 0 {
		errs = append(errs, fmt.Errorf("EDITCACHE_GEN_TTL must not be negative, got %s", c.GenTTL))
	}
	if c.GenTTL > 0 && c.GenTTL < max(c.DetailTTL, c.CatalogTTL) {
		// an expired generation restarts at 0 and could validate an older frame
		errs = append(errs, fmt.Errorf("EDITCACHE_GEN_TTL (%s) must be at least the longest store TTL", c.GenTTL))
	}
	errs = append(errs,
		oneOf("EDITCACHE_PROVIDER", c.Provider, providers),
		oneOf("EDITCACHE_CODEC", c.Codec, codecs),
		oneOf("EDITCACHE_GEN_STORE", c.GenStore, genStores),
		oneOf("EDITCACHE_LOG_BACKEND", c.LogBackend, backends),
		oneOf("EDITCACHE_LOG_LEVEL", c.LogLevel, levels),
	)
	if c.NeedsRedis() && c.RedisAddr == "" {
		errs = append(errs, errors.New("EDITCACHE_REDIS_ADDR is required when provider or gen store is redis"))
	}
	if c.Provider == ProviderRedis && c.GenStore == GenStoreLocal {
		// frames written by another process would never match local generations
		errs = append(errs, errors.New("EDITCACHE_GEN_STORE must be redis when EDITCACHE_PROVIDER is redis"))
	}
	return errors.Join(errs...)
}

func oneOf(name, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", name, v, strings.Join(allowed, ", "))
}

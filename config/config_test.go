package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DetailTTL != 10*time.Second || cfg.CatalogTTL != 20*time.Second {
		t.Fatalf("ttl defaults: detail=%s catalog=%s", cfg.DetailTTL, cfg.CatalogTTL)
	}
	if cfg.Provider != ProviderMemory || cfg.Codec != "json" || cfg.GenStore != GenStoreLocal {
		t.Fatalf("backend defaults: %+v", cfg)
	}
	if cfg.APITimeout != 15*time.Second || cfg.LogBackend != LogSlog || cfg.Disabled {
		t.Fatalf("misc defaults: %+v", cfg)
	}
	if cfg.NeedsRedis() {
		t.Fatalf("defaults must not need redis")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EDITCACHE_DETAIL_TTL", "3s")
	t.Setenv("EDITCACHE_PROVIDER", "redis")
	t.Setenv("EDITCACHE_GEN_STORE", "redis")
	t.Setenv("EDITCACHE_REDIS_ADDR", "localhost:6379")
	t.Setenv("EDITCACHE_REDIS_DB", "2")
	t.Setenv("EDITCACHE_CODEC", "cbor")
	t.Setenv("EDITCACHE_DISABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DetailTTL != 3*time.Second || cfg.RedisDB != 2 || cfg.Codec != "cbor" || !cfg.Disabled {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if !cfg.NeedsRedis() {
		t.Fatalf("redis provider needs redis")
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("EDITCACHE_DETAIL_TTL", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DetailTTL:  10 * time.Second,
			CatalogTTL: 20 * time.Second,
			Provider:   ProviderMemory,
			Codec:      "json",
			GenStore:   GenStoreLocal,
			LogBackend: LogSlog,
			LogLevel:   "info",
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string // substring; "" means valid
	}{
		{"valid", func(*Config) {}, ""},
		{"zero detail ttl", func(c *Config) { c.DetailTTL = 0 }, "EDITCACHE_DETAIL_TTL"},
		{"negative catalog ttl", func(c *Config) { c.CatalogTTL = -time.Second }, "EDITCACHE_CATALOG_TTL"},
		{"unknown provider", func(c *Config) { c.Provider = "memcached" }, "EDITCACHE_PROVIDER"},
		{"unknown codec", func(c *Config) { c.Codec = "xml" }, "EDITCACHE_CODEC"},
		{"unknown level", func(c *Config) { c.LogLevel = "trace" }, "EDITCACHE_LOG_LEVEL"},
		{"redis without addr", func(c *Config) { c.GenStore = GenStoreRedis }, "EDITCACHE_REDIS_ADDR"},
		{"redis provider with local gens", func(c *Config) {
			c.Provider = ProviderRedis
			c.RedisAddr = "localhost:6379"
		}, "EDITCACHE_GEN_STORE must be redis"},
		{"gen ttl shorter than store ttl", func(c *Config) { c.GenTTL = 5 * time.Second }, "EDITCACHE_GEN_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want error containing %q, got %v", tt.want, err)
			}
		})
	}
}

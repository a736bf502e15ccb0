// Package memory is the default in-process provider, backed by patrickmn/go-cache.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	pr "github.com/unkn0wn-root/editcache/provider"
)

type Memory struct {
	c *gocache.Cache
}

var _ pr.Provider = (*Memory)(nil)

type Config struct {
	// CleanupInterval purges expired items; 0 => 1m, < 0 disables the janitor.
	CleanupInterval time.Duration
}

func New(cfg Config) *Memory {
	interval := cfg.CleanupInterval
	if interval == 0 {
		interval = time.Minute
	}
	// default expiration is never used; Set always passes an explicit ttl
	return &Memory{c: gocache.New(gocache.NoExpiration, interval)}
}

func (p *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set with ttl <= 0 stores without expiry.
func (p *Memory) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Memory) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

// Len reports the number of stored items, expired ones included until purged.
func (p *Memory) Len() int { return p.c.ItemCount() }

func (p *Memory) Close(_ context.Context) error {
	p.c.Flush()
	return nil
}

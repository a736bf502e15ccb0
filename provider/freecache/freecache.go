package freecache

import (
	"context"
	"errors"
	"math"
	"time"

	fc "github.com/coocood/freecache"

	pr "github.com/unkn0wn-root/editcache/provider"
)

// Provider is a fixed-size in-process store. freecache evicts under pressure
// and rejects values larger than 1/1024 of the cache size.
type Provider struct {
	c *fc.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	SizeMB int // 0 => 32MB; freecache enforces a 512KB minimum
}

func New(cfg Config) *Provider {
	size := cfg.SizeMB
	if size <= 0 {
		size = 32
	}
	return &Provider{c: fc.NewCache(size * 1024 * 1024)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get([]byte(key))
	if errors.Is(err, fc.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set rounds ttl up to whole seconds; ttl <= 0 => no expiry.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	err := p.c.Set([]byte(key), value, expireSeconds(ttl))
	if errors.Is(err, fc.ErrLargeEntry) || errors.Is(err, fc.ErrLargeKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del([]byte(key))
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Clear()
	return nil
}

func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	s := math.Ceil(ttl.Seconds())
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(s)
}

// Package admincache builds the process-wide stores of the user
// administration tool: one detail loader keyed by user id and one loader for
// each catalog.
package admincache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/editcache"
	"github.com/unkn0wn-root/editcache/admin"
	c "github.com/unkn0wn-root/editcache/codec"
	"github.com/unkn0wn-root/editcache/config"
	gen "github.com/unkn0wn-root/editcache/genstore"
	asynchook "github.com/unkn0wn-root/editcache/hooks/async"
	promhooks "github.com/unkn0wn-root/editcache/hooks/prom"
	pr "github.com/unkn0wn-root/editcache/provider"
	"github.com/unkn0wn-root/editcache/provider/bigcache"
	"github.com/unkn0wn-root/editcache/provider/freecache"
	"github.com/unkn0wn-root/editcache/provider/memory"
	redisprov "github.com/unkn0wn-root/editcache/provider/redis"
	"github.com/unkn0wn-root/editcache/provider/ristretto"
	"github.com/unkn0wn-root/editcache/sloghooks"
)

// CatalogKey is the single key of the roles and permissions stores.
const CatalogKey = "all"

const (
	nsUser        = "user"
	nsRoles       = "roles"
	nsPermissions = "permissions"
)

type Option func(*options)

type options struct {
	logger       editcache.Logger
	hooks        editcache.Hooks
	registerer   prometheus.Registerer
	redis        goredis.UniversalClient
	now          func() time.Time
	asyncWorkers int
	asyncQueue   int
}

// WithLogger overrides the logger built from config.
func WithLogger(l editcache.Logger) Option { return func(o *options) { o.logger = l } }

// WithHooks adds h to every store.
func WithHooks(h editcache.Hooks) Option { return func(o *options) { o.hooks = h } }

// WithMetrics registers per-store hook counters on reg.
func WithMetrics(reg prometheus.Registerer) Option { return func(o *options) { o.registerer = reg } }

// WithRedisClient uses rdb instead of dialing EDITCACHE_REDIS_ADDR. The
// caller keeps ownership of rdb.
func WithRedisClient(rdb goredis.UniversalClient) Option { return func(o *options) { o.redis = rdb } }

// WithClock replaces time.Now in every store.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithAsyncHooks delivers hook events on workers goroutines through a queue
// of qlen events.
func WithAsyncHooks(workers, qlen int) Option {
	return func(o *options) { o.asyncWorkers, o.asyncQueue = workers, qlen }
}

// Stores holds the three loaders. Construct once at startup and pass it to
// consumers.
type Stores struct {
	Users       editcache.Loader[admin.User]
	Roles       editcache.Loader[[]admin.Role]
	Permissions editcache.Loader[[]admin.Permission]
	Log         editcache.Logger

	rdb       goredis.UniversalClient
	ownsRedis bool
	gens      gen.GenStore
	async     []*asynchook.Hooks

	closeOnce sync.Once
	closeErr  error
}

// New builds the stores described by cfg on top of api.
func New(ctx context.Context, cfg config.Config, api admin.API, opts ...Option) (*Stores, error) {
	if api == nil {
		return nil, errors.New("admincache: nil api")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var sl *slog.Logger
	if o.logger == nil {
		l, std, err := NewLogger(cfg, os.Stderr)
		if err != nil {
			return nil, err
		}
		o.logger, sl = l, std
	}
	s := &Stores{Log: o.logger}
	b := &builder{cfg: cfg, opts: o, stores: s, slog: sl}

	if err := b.redis(); err != nil {
		return nil, s.fail(ctx, err)
	}

	var err error
	if s.Users, err = build(ctx, b, nsUser, cfg.DetailTTL, api.FetchUser); err != nil {
		return nil, s.fail(ctx, err)
	}
	if s.Roles, err = build(ctx, b, nsRoles, cfg.CatalogTTL, func(ctx context.Context, _ string) ([]admin.Role, error) {
		return api.FetchRoles(ctx)
	}); err != nil {
		return nil, s.fail(ctx, err)
	}
	if s.Permissions, err = build(ctx, b, nsPermissions, cfg.CatalogTTL, func(ctx context.Context, _ string) ([]admin.Permission, error) {
		return api.FetchPermissions(ctx)
	}); err != nil {
		return nil, s.fail(ctx, err)
	}

	s.Log.Info("admin stores ready", editcache.Fields{
		"provider": cfg.Provider, "codec": cfg.Codec, "genStore": cfg.GenStore, "disabled": cfg.Disabled,
	})
	return s, nil
}

func (s *Stores) User(ctx context.Context, id string) (admin.User, error) {
	return s.Users.Load(ctx, id)
}

func (s *Stores) AllRoles(ctx context.Context) ([]admin.Role, error) {
	return s.Roles.Load(ctx, CatalogKey)
}

func (s *Stores) AllPermissions(ctx context.Context) ([]admin.Permission, error) {
	return s.Permissions.Load(ctx, CatalogKey)
}

// InvalidateCatalogs drops both catalogs, e.g. after a role was edited.
func (s *Stores) InvalidateCatalogs(ctx context.Context) error {
	return errors.Join(
		s.Roles.Invalidate(ctx, CatalogKey),
		s.Permissions.Invalidate(ctx, CatalogKey),
	)
}

// Close closes the loaders, then the generation store, the hook queues and the
// redis client when Stores dialed it.
func (s *Stores) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.Users != nil {
			errs = append(errs, s.Users.Close(ctx))
		}
		if s.Roles != nil {
			errs = append(errs, s.Roles.Close(ctx))
		}
		if s.Permissions != nil {
			errs = append(errs, s.Permissions.Close(ctx))
		}
		if s.gens != nil {
			errs = append(errs, s.gens.Close(ctx))
		}
		for _, h := range s.async {
			h.Close()
		}
		if s.ownsRedis && s.rdb != nil {
			if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Stores) fail(ctx context.Context, err error) error {
	if cerr := s.Close(ctx); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

type builder struct {
	cfg    config.Config
	opts   options
	stores *Stores
	slog   *slog.Logger
}

func (b *builder) redis() error {
	if !b.cfg.NeedsRedis() {
		return nil
	}
	s := b.stores
	if b.opts.redis != nil {
		s.rdb = b.opts.redis
	} else {
		s.rdb = goredis.NewClient(&goredis.Options{
			Addr:     b.cfg.RedisAddr,
			Password: b.cfg.RedisPassword,
			DB:       b.cfg.RedisDB,
		})
		s.ownsRedis = true
	}
	if b.cfg.GenStore == config.GenStoreRedis {
		gs, err := gen.NewRedisGenStore(gen.RedisConfig{
			Client:    s.rdb,
			Namespace: b.cfg.RedisPrefix,
			TTL:       b.cfg.GenTTL,
		})
		if err != nil {
			return err
		}
		s.gens = gs
	}
	return nil
}

func (b *builder) provider(ctx context.Context, ttl time.Duration) (pr.Provider, error) {
	switch b.cfg.Provider {
	case config.ProviderMemory:
		return memory.New(memory.Config{}), nil
	case config.ProviderFreecache:
		return freecache.New(freecache.Config{SizeMB: b.cfg.FreecacheSizeMB}), nil
	case config.ProviderRistretto:
		cost := b.cfg.RistrettoCostMB << 20
		return ristretto.New(ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     cost,
			BufferItems: 64,
		})
	case config.ProviderBigcache:
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         ttl,
			CleanWindow:        ttl,
			HardMaxCacheSizeMB: b.cfg.BigcacheMaxMB,
		})
	case config.ProviderRedis:
		return redisprov.New(redisprov.Config{Client: b.stores.rdb, Prefix: b.cfg.RedisPrefix})
	default:
		return nil, fmt.Errorf("admincache: unknown provider %q", b.cfg.Provider)
	}
}

func (b *builder) hooks(ns string) (editcache.Hooks, error) {
	var hs editcache.MultiHooks
	if b.opts.hooks != nil {
		hs = append(hs, b.opts.hooks)
	}
	if b.slog != nil {
		hs = append(hs, sloghooks.New(b.slog.With("cache", ns), sloghooks.Options{SelfHealEvery: 10, SharedEvery: 100}))
	}
	if b.opts.registerer != nil {
		ph, err := promhooks.New(b.opts.registerer, ns)
		if err != nil {
			return nil, fmt.Errorf("metrics for %s: %w", ns, err)
		}
		hs = append(hs, ph)
	}

	var h editcache.Hooks
	switch len(hs) {
	case 0:
		return nil, nil
	case 1:
		h = hs[0]
	default:
		h = hs
	}
	if b.opts.asyncWorkers > 0 {
		ah := asynchook.New(h, b.opts.asyncWorkers, b.opts.asyncQueue)
		b.stores.async = append(b.stores.async, ah)
		h = ah
	}
	return h, nil
}

func build[V any](ctx context.Context, b *builder, ns string, ttl time.Duration, fetch editcache.FetchFunc[V]) (editcache.Loader[V], error) {
	inner, err := c.ByName[V](b.cfg.Codec)
	if err != nil {
		return nil, err
	}
	p, err := b.provider(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("provider for %s: %w", ns, err)
	}
	h, err := b.hooks(ns)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	l, err := editcache.New[V](editcache.Options[V]{
		Namespace: ns,
		Provider:  p,
		Codec:     c.Limit[V]{Inner: inner, MaxDecode: b.cfg.MaxDecodeBytes},
		Fetch:     fetch,
		TTL:       ttl,
		Logger:    b.opts.logger,
		Hooks:     h,
		GenStore:  b.stores.gens,
		Now:       b.opts.now,
		Disabled:  b.cfg.Disabled,
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return l, nil
}

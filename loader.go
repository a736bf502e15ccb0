package editcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/editcache/codec"
	gen "github.com/unkn0wn-root/editcache/genstore"
	"github.com/unkn0wn-root/editcache/internal/wire"
	pr "github.com/unkn0wn-root/editcache/provider"
)

// miss reasons reported by read; "" means hit.
const (
	missAbsent      = "absent"
	missCorrupt     = "corrupt"
	missGenMismatch = "gen_mismatch"
	missExpired     = "expired"
	missDecode      = "value_decode"
	missSnapshot    = "snapshot_error"
)

type loader[V any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[V]
	fetch    FetchFunc[V]
	log      Logger
	hooks    Hooks
	ttl      time.Duration
	now      func() time.Time
	enabled  bool

	gen     gen.GenStore
	ownsGen bool

	// mu orders generation checks with the provider writes and deletes they
	// guard. Held across provider calls.
	mu     sync.Mutex
	flight singleflight.Group

	closeOnce sync.Once
	closeErr  error
}

func newLoader[V any](opts Options[V]) (*loader[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("editcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("editcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("editcache: namespace is required")
	}
	if opts.Fetch == nil {
		return nil, ErrNilFetch
	}

	l := &loader[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		fetch:    opts.Fetch,
		enabled:  !opts.Disabled,
		now:      opts.Now,
	}

	l.log = coalesce[Logger](opts.Logger, NopLogger{}).With(Fields{"ns": opts.Namespace})
	l.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	l.ttl = coalesce[time.Duration](opts.TTL, defaultTTL)
	if l.now == nil {
		l.now = time.Now
	}

	if opts.GenStore != nil {
		l.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
		retention := coalesce[time.Duration](opts.GenRetention, defaultGenRetention)
		l.gen = gen.NewLocalGenStore(sweep, retention)
		l.ownsGen = true
	}
	return l, nil
}

func (l *loader[V]) Enabled() bool { return l.enabled }

func (l *loader[V]) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		// gen store first (best effort), only when we created it
		if l.ownsGen {
			_ = l.gen.Close(ctx)
		}
		l.closeErr = l.provider.Close(ctx)
	})
	return l.closeErr
}

func (l *loader[V]) Load(ctx context.Context, key string) (V, error) {
	var zero V
	if !l.enabled {
		v, err := l.fetch(ctx, key)
		if err != nil {
			return zero, &FetchError{Key: key, Err: err}
		}
		return v, nil
	}

	sk := l.storageKey(key)

	l.mu.Lock()
	v, _, miss, err := l.read(ctx, sk)
	l.mu.Unlock()
	if err != nil {
		// provider outage degrades to a plain fetch
		l.log.Warn("provider get failed; fetching", Fields{"key": key, "err": err})
	} else if miss == "" {
		return v, nil
	}

	ch := l.flight.DoChan(sk, func() (any, error) {
		// joined callers share this fetch; one caller's cancellation must not abort it
		return l.fetchAndStore(context.WithoutCancel(ctx), key, sk)
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.hooks.FetchShared(sk)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		out, _ := res.Val.(V)
		return out, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (l *loader[V]) fetchAndStore(ctx context.Context, key, sk string) (any, error) {
	startGen, snapOK := l.snapshotGen(ctx, sk)

	v, err := l.fetch(ctx, key)
	if err != nil {
		// a failed fetch counts as an invalidation so the retry starts clean
		l.mu.Lock()
		newGen, bumpErr := l.gen.Bump(ctx, sk)
		l.mu.Unlock()
		if bumpErr != nil {
			l.hooks.GenBumpError(sk, bumpErr)
			l.log.Error("gen bump after failed fetch", Fields{"key": key, "err": bumpErr})
		}
		l.hooks.FetchFailed(sk, err)
		l.log.Debug("fetch failed", Fields{"key": key, "newGen": newGen, "err": err})
		return nil, &FetchError{Key: key, Err: err}
	}

	if !snapOK {
		return v, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.snapshotGen(ctx, sk)
	if !ok {
		return v, nil
	}
	if cur != startGen {
		l.hooks.FetchSuperseded(sk, startGen, cur)
		l.log.Debug("fetch superseded; result not cached", Fields{"key": key, "startGen": startGen, "gen": cur})
		return v, nil
	}
	if err := l.write(ctx, sk, v, cur); err != nil {
		// the caller still gets valid data; only seeding failed
		l.log.Warn("cache write after fetch failed", Fields{"key": key, "err": err})
	}
	return v, nil
}

func (l *loader[V]) Peek(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !l.enabled {
		return zero, false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, _, miss, err := l.read(ctx, l.storageKey(key))
	if err != nil || miss != "" {
		return zero, false, err
	}
	return v, true, nil
}

func (l *loader[V]) Invalidate(ctx context.Context, key string) error {
	if !l.enabled {
		return nil
	}
	sk := l.storageKey(key)

	l.mu.Lock()
	newGen, bumpErr := l.gen.Bump(ctx, sk)
	delErr := l.provider.Del(ctx, sk)
	// the physical fetch keeps running; its result fails the gen check
	l.flight.Forget(sk)
	l.mu.Unlock()

	if bumpErr != nil {
		l.hooks.GenBumpError(sk, bumpErr)
		l.log.Error("gen bump error", Fields{"key": key, "err": bumpErr})
	}
	if delErr != nil {
		l.log.Warn("invalidate delete error", Fields{"key": key, "err": delErr})
	}
	if bumpErr != nil && delErr != nil {
		l.hooks.InvalidateOutage(key, bumpErr, delErr)
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	l.log.Debug("invalidated key (bumped gen + cleared entry)", Fields{"key": key, "newGen": newGen})
	return nil
}

func (l *loader[V]) MergePatch(ctx context.Context, key string, p Patch[V]) (bool, error) {
	sk := l.storageKey(key)
	if !l.enabled {
		l.hooks.MergeSkipped(sk, "disabled")
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, g, miss, err := l.read(ctx, sk)
	if err != nil {
		return false, err
	}
	if miss != "" {
		// nothing authoritative to patch; next Load fetches
		l.hooks.MergeSkipped(sk, miss)
		return false, nil
	}
	if err := l.write(ctx, sk, p.Apply(cur), g); err != nil {
		return false, err
	}
	return true, nil
}

func (l *loader[V]) SnapshotGen(key string) uint64 {
	g, _ := l.snapshotGen(context.Background(), l.storageKey(key))
	return g
}

// read must be called with mu held. It returns the decoded fresh value with
// the generation it was stored under, or a non-empty miss reason.
func (l *loader[V]) read(ctx context.Context, sk string) (V, uint64, string, error) {
	var zero V
	raw, ok, err := l.provider.Get(ctx, sk)
	if err != nil {
		return zero, 0, "", err
	}
	if !ok {
		return zero, 0, missAbsent, nil
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		l.heal(ctx, sk, missCorrupt)
		return zero, 0, missCorrupt, nil
	}
	cur, ok := l.snapshotGen(ctx, sk)
	if !ok {
		return zero, 0, missSnapshot, nil
	}
	if e.Gen != cur {
		l.heal(ctx, sk, missGenMismatch)
		return zero, 0, missGenMismatch, nil
	}
	if l.now().Sub(e.StoredAt) >= l.ttl {
		if err := l.provider.Del(ctx, sk); err != nil {
			l.log.Debug("delete of expired entry failed", Fields{"key": sk, "err": err})
		}
		return zero, 0, missExpired, nil
	}
	v, err := l.codec.Decode(e.Payload)
	if err != nil {
		l.heal(ctx, sk, missDecode)
		return zero, 0, missDecode, nil
	}
	return v, e.Gen, "", nil
}

// write must be called with mu held.
func (l *loader[V]) write(ctx context.Context, sk string, v V, g uint64) error {
	payload, err := l.codec.Encode(v)
	if err != nil {
		return err
	}
	frame := wire.EncodeEntry(g, l.now(), payload)
	ok, err := l.provider.Set(ctx, sk, frame, int64(len(frame)), l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		l.hooks.ProviderSetRejected(sk)
		l.log.Debug("Set rejected by provider (pressure)", Fields{"key": sk})
	}
	return nil
}

func (l *loader[V]) heal(ctx context.Context, sk, reason string) {
	_ = l.provider.Del(ctx, sk)
	l.hooks.SelfHeal(sk, reason)
}

func (l *loader[V]) snapshotGen(ctx context.Context, sk string) (uint64, bool) {
	g, err := l.gen.Snapshot(ctx, sk)
	if err != nil {
		// Conservative: no caching decisions without a generation
		l.hooks.GenSnapshotError(sk, err)
		l.log.Warn("gen snapshot error", Fields{"key": sk, "err": err})
		return 0, false
	}
	return g, true
}

func (l *loader[V]) storageKey(userKey string) string {
	// isolate by namespace
	return "single:" + l.ns + ":" + userKey
}

package editcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/editcache/codec"
	gen "github.com/unkn0wn-root/editcache/genstore"
	pr "github.com/unkn0wn-root/editcache/provider"
)

// FetchFunc loads the authoritative value for key from the remote side.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

// Patch computes the next cached value from the current one.
// Apply must not mutate cur; it receives a freshly decoded copy.
type Patch[V any] interface {
	Apply(cur V) V
}

// PatchFunc adapts a plain function to Patch.
type PatchFunc[V any] func(cur V) V

func (f PatchFunc[V]) Apply(cur V) V { return f(cur) }

// Loader is the read-through cache for one resource kind.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Loader[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Load serves a fresh entry, joins the outstanding fetch for key, or
	// starts a new one. A fetch result is cached only if key was not
	// invalidated while it was in flight.
	Load(ctx context.Context, key string) (V, error)
	// Peek returns the fresh cached value without fetching.
	Peek(ctx context.Context, key string) (v V, ok bool, err error)
	// Invalidate bumps the generation, drops the entry and detaches any
	// in-flight fetch so the next Load starts a new one.
	Invalidate(ctx context.Context, key string) error
	// MergePatch applies p to a fresh cached entry and refreshes its storedAt.
	// merged is false when nothing was cached for key.
	MergePatch(ctx context.Context, key string, p Patch[V]) (merged bool, err error)

	// SnapshotGen returns the current generation for key.
	SnapshotGen(key string) uint64
}

// Options tune the behavior of a Loader.
// Namespace, Provider, Codec and Fetch are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "roles"
	Provider  pr.Provider
	Codec     c.Codec[V]
	Fetch     FetchFunc[V]

	TTL             time.Duration    // freshness window; 0 => 10s
	Logger          Logger           // if nil, NopLogger is used
	Hooks           Hooks            // if nil, NopHooks is used
	GenStore        gen.GenStore     // nil => LocalGenStore (in-process)
	Now             func() time.Time // nil => time.Now
	CleanupInterval time.Duration    // LocalGenStore sweep; 0 => 1h
	GenRetention    time.Duration    // LocalGenStore retention; 0 => 30d
	Disabled        bool             // default false (enabled)
}

func New[V any](opts Options[V]) (Loader[V], error) {
	return newLoader[V](opts)
}

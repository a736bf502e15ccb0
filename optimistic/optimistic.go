// Package optimistic keeps a Loader consistent with side-effecting remote
// calls: a guess is written before the call and rolled back by refetch when
// the call fails, or a confirmed response is merged after the call succeeds.
package optimistic

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/editcache"
)

// RollbackError reports a failed optimistic call. Cause is the remote error;
// RefetchErr is set when re-establishing the authoritative value also failed.
type RollbackError struct {
	Key        string
	Cause      error
	RefetchErr error
}

func (e *RollbackError) Error() string {
	if e.RefetchErr != nil {
		return fmt.Sprintf("optimistic update of %q rolled back: %v (refetch failed: %v)", e.Key, e.Cause, e.RefetchErr)
	}
	return fmt.Sprintf("optimistic update of %q rolled back: %v", e.Key, e.Cause)
}

func (e *RollbackError) Unwrap() []error {
	if e.RefetchErr == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.RefetchErr}
}

type Engine[V any] struct {
	loader  editcache.Loader[V]
	log     editcache.Logger
	applied func(ctx context.Context, key string)
}

// New returns an engine over l. A nil log disables logging.
func New[V any](l editcache.Loader[V], log editcache.Logger) *Engine[V] {
	if log == nil {
		log = editcache.NopLogger{}
	}
	return &Engine[V]{loader: l, log: log.With(editcache.Fields{"component": "optimistic"})}
}

// OnApplied registers fn to run whenever an Optimistic call changed the cached
// value: after the guess is written, before remote runs, and again after a
// rollback reload. fn runs on the caller's goroutine.
func (e *Engine[V]) OnApplied(fn func(ctx context.Context, key string)) *Engine[V] {
	e.applied = fn
	return e
}

func (e *Engine[V]) notify(ctx context.Context, key string) {
	if e.applied != nil {
		e.applied(ctx, key)
	}
}

// Optimistic writes guess into the cache, then runs remote. On success the
// guess stands. On failure the key is invalidated and reloaded so the cache
// holds the authoritative value again, and a *RollbackError is returned.
func (e *Engine[V]) Optimistic(ctx context.Context, key string, guess editcache.Patch[V], remote func(context.Context) error) error {
	merged, err := e.loader.MergePatch(ctx, key, guess)
	if err != nil {
		// remote still runs; a failure below reloads anyway
		e.log.Warn("optimistic merge failed", editcache.Fields{"key": key, "err": err})
	}
	if merged {
		e.notify(ctx, key)
	}

	cause := remote(ctx)
	if cause == nil {
		return nil
	}

	rb := &RollbackError{Key: key, Cause: cause}
	if err := e.loader.Invalidate(ctx, key); err != nil {
		e.log.Error("rollback invalidate failed", editcache.Fields{"key": key, "err": err})
	}
	if _, err := e.loader.Load(ctx, key); err != nil {
		rb.RefetchErr = err
	} else {
		e.notify(ctx, key)
	}
	e.log.Info("optimistic update rolled back", editcache.Fields{"key": key, "err": cause, "refetchErr": rb.RefetchErr})
	return rb
}

// Confirmed runs remote and merges the patch built from its response. A nil
// patch leaves the cache as is. Remote errors are returned untouched and
// nothing is patched.
func (e *Engine[V]) Confirmed(ctx context.Context, key string, remote func(context.Context) (editcache.Patch[V], error)) error {
	p, err := remote(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	merged, err := e.loader.MergePatch(ctx, key, p)
	if err != nil {
		// the server accepted the change; drop the entry so the next Load heals it
		e.log.Warn("confirmed merge failed; invalidating", editcache.Fields{"key": key, "err": err})
		if ierr := e.loader.Invalidate(ctx, key); ierr != nil {
			e.log.Error("invalidate after failed merge", editcache.Fields{"key": key, "err": ierr})
		}
		return nil
	}
	if !merged {
		e.log.Debug("confirmed response not merged; key not cached", editcache.Fields{"key": key})
	}
	return nil
}

// Package editcache implements a read-through cache with generation-gated
// writes for remote catalogs and per-entity detail records.
//
// Components:
//   - Provider: byte store with TTL (go-cache, freecache, Ristretto, BigCache, Redis).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - GenStore: generation counter per logical key, bumped on invalidation.
//     Local (in-process) by default, optional Redis implementation.
//   - In-flight registry: at most one outstanding fetch per key; concurrent
//     callers join it (golang.org/x/sync/singleflight).
//
// Keys:
//
//	single:<ns>:<key> - cached entries
//
// Every stored frame carries the generation it was written under and the time
// it was stored. An entry is served only while its generation is current and
// now-storedAt < TTL.
//
// Load flow:
//
//	v, err := users.Load(ctx, id)         // fresh hit, join in-flight, or fetch
//	_ = users.Invalidate(ctx, id)         // bump gen; in-flight result is not cached
//	_, _ = users.MergePatch(ctx, id, p)   // confirmed-fresh partial update
package editcache

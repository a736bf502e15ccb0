package editcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The loader calls them on hot paths, some while holding its write lock.
type Hooks interface {
	// A cached entry was deleted by the loader on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A fetch result was delivered to more than one caller.
	// Called once per receiving caller.
	FetchShared(storageKey string)

	// A fetch completed after its key was invalidated; the result was
	// returned to the caller but not cached.
	FetchSuperseded(storageKey string, startGen, currentGen uint64)

	// A fetch failed; the key's generation was bumped.
	FetchFailed(storageKey string, err error)

	// MergePatch found nothing to patch.
	// reason ∈ {"absent", "corrupt", "gen_mismatch", "expired",
	// "value_decode", "snapshot_error", "disabled"}
	MergeSkipped(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors (snapshot or bump).
	GenSnapshotError(storageKey string, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and delete failed during Invalidate (likely backend outage).
	InvalidateOutage(key string, bumpErr, delErr error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                {}
func (NopHooks) FetchShared(string)                     {}
func (NopHooks) FetchSuperseded(string, uint64, uint64) {}
func (NopHooks) FetchFailed(string, error)              {}
func (NopHooks) MergeSkipped(string, string)            {}
func (NopHooks) ProviderSetRejected(string)             {}
func (NopHooks) GenSnapshotError(string, error)         {}
func (NopHooks) GenBumpError(string, error)             {}
func (NopHooks) InvalidateOutage(string, error, error)  {}

// MultiHooks fans every event out to each element in order.
type MultiHooks []Hooks

func (m MultiHooks) SelfHeal(k, r string) {
	for _, h := range m {
		h.SelfHeal(k, r)
	}
}

func (m MultiHooks) FetchShared(k string) {
	for _, h := range m {
		h.FetchShared(k)
	}
}

func (m MultiHooks) FetchSuperseded(k string, start, cur uint64) {
	for _, h := range m {
		h.FetchSuperseded(k, start, cur)
	}
}

func (m MultiHooks) FetchFailed(k string, err error) {
	for _, h := range m {
		h.FetchFailed(k, err)
	}
}

func (m MultiHooks) MergeSkipped(k, r string) {
	for _, h := range m {
		h.MergeSkipped(k, r)
	}
}

func (m MultiHooks) ProviderSetRejected(k string) {
	for _, h := range m {
		h.ProviderSetRejected(k)
	}
}

func (m MultiHooks) GenSnapshotError(k string, err error) {
	for _, h := range m {
		h.GenSnapshotError(k, err)
	}
}

func (m MultiHooks) GenBumpError(k string, err error) {
	for _, h := range m {
		h.GenBumpError(k, err)
	}
}

func (m MultiHooks) InvalidateOutage(k string, bumpErr, delErr error) {
	for _, h := range m {
		h.InvalidateOutage(k, bumpErr, delErr)
	}
}

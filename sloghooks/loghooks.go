// Package sloghooks logs editcache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/editcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	SharedEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	sharedCtr   atomic.Uint64
}

var _ editcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("editcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) FetchShared(storageKey string) {
	if h.l == nil || !sample(h.opts.SharedEvery, &h.sharedCtr) {
		return
	}
	h.l.Debug("editcache.fetch_shared", "key", h.redact(storageKey))
}

func (h *Hooks) FetchSuperseded(storageKey string, startGen, currentGen uint64) {
	if h.l == nil {
		return
	}
	h.l.Info("editcache.fetch_superseded",
		"key", h.redact(storageKey),
		"start_gen", startGen,
		"gen", currentGen)
}

func (h *Hooks) FetchFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("editcache.fetch_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) MergeSkipped(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("editcache.merge_skipped",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("editcache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) GenSnapshotError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("editcache.gen_snapshot_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("editcache.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) InvalidateOutage(key string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("editcache.invalidate_outage",
		"key", h.redact(key),
		"bump_err", bumpErr,
		"del_err", delErr)
}

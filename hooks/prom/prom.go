// Package promhooks counts editcache hook events with Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/editcache"
)

// Hooks exposes one counter vector per event family. Storage keys are never
// used as labels; only the namespace is, to keep cardinality bounded.
type Hooks struct {
	selfHeal    *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	mergeSkip   *prometheus.CounterVec
	setRejected prometheus.Counter
	genErrors   *prometheus.CounterVec
	outages     prometheus.Counter
}

var _ editcache.Hooks = (*Hooks)(nil)

// New registers the counters for one loader namespace on reg.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	labels := prometheus.Labels{"cache": namespace}
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "editcache_self_heal_total",
			Help:        "Cached entries deleted on read, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "editcache_fetch_events_total",
			Help:        "Fetch outcomes: shared, superseded, failed.",
			ConstLabels: labels,
		}, []string{"event"}),
		mergeSkip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "editcache_merge_skipped_total",
			Help:        "MergePatch calls that found nothing to patch, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "editcache_provider_set_rejected_total",
			Help:        "Writes rejected by the provider under pressure.",
			ConstLabels: labels,
		}),
		genErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "editcache_gen_errors_total",
			Help:        "Generation store errors, by operation.",
			ConstLabels: labels,
		}, []string{"op"}),
		outages: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "editcache_invalidate_outage_total",
			Help:        "Invalidations where both gen bump and delete failed.",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{h.selfHeal, h.fetches, h.mergeSkip, h.setRejected, h.genErrors, h.outages} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_, reason string)              { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) FetchShared(string)                     { h.fetches.WithLabelValues("shared").Inc() }
func (h *Hooks) FetchFailed(string, error)              { h.fetches.WithLabelValues("failed").Inc() }
func (h *Hooks) FetchSuperseded(string, uint64, uint64) { h.fetches.WithLabelValues("superseded").Inc() }
func (h *Hooks) MergeSkipped(_, reason string)          { h.mergeSkip.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)             { h.setRejected.Inc() }
func (h *Hooks) GenSnapshotError(string, error)         { h.genErrors.WithLabelValues("snapshot").Inc() }
func (h *Hooks) GenBumpError(string, error)             { h.genErrors.WithLabelValues("bump").Inc() }
func (h *Hooks) InvalidateOutage(string, error, error)  { h.outages.Inc() }

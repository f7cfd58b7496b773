// Package metrics exposes Prometheus counters for the relay pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slotrelay"

// Relay counts pipeline outcomes. All counters are monotonic; rates and
// ratios are derived at query time.
type Relay struct {
	Admitted          prometheus.Counter
	Suppressed        prometheus.Counter
	Unrecognized      prometheus.Counter
	Exhausted         prometheus.Counter
	OrphanExhaustions prometheus.Counter
	PredictiveNotices prometheus.Counter
	StoreErrors       prometheus.Counter
}

func NewRelay(reg prometheus.Registerer) *Relay {
	f := promauto.With(reg)
	return &Relay{
		Admitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "admitted_total",
			Help: "Slot announcements admitted and relayed to the channel.",
		}),
		Suppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "suppressed_total",
			Help: "Announcements suppressed by the fingerprint dedup window.",
		}),
		Unrecognized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "unrecognized_total",
			Help: "Feed messages that matched no announcement grammar.",
		}),
		Exhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "exhausted_total",
			Help: "Announcements closed out by a correlated exhaustion event.",
		}),
		OrphanExhaustions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "orphan_exhaustions_total",
			Help: "Exhaustion events with no active announcement to correlate to.",
		}),
		PredictiveNotices: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "predictor", Name: "notices_total",
			Help: "Silent predictive notices posted ahead of likely hours.",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "store_errors_total",
			Help: "Transient store failures observed by the pipeline.",
		}),
	}
}

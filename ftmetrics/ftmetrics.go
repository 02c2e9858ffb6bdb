// Package ftmetrics exposes the failure table's counters and gauges as
// Prometheus collectors, promoting the reference client's indirect
// dependency on github.com/prometheus/client_golang to a first-class,
// directly-imported one: this subsystem is exactly the kind of
// size-bounded, churn-heavy structure operators want a gauge on.
package ftmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors a FailureTable registers. Construct with
// NewMetrics and register the result with a prometheus.Registerer; the
// failure table updates the exported fields directly, it doesn't own
// registration.
type Metrics struct {
	EntriesSize  prometheus.Gauge
	OffersSize   prometheus.Gauge
	Evictions    prometheus.Counter
	OffersAccept prometheus.Counter
	OffersReject prometheus.Counter
	OffersExpire prometheus.Counter
	UIDsReleased prometheus.Counter
	PipelineTook prometheus.Histogram
}

// NewMetrics constructs a Metrics with the namespace prefix
// "failuretable". Call RegisterOn to attach it to a registry.
func NewMetrics() *Metrics {
	const ns = "failuretable"
	return &Metrics{
		EntriesSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "entries_size",
			Help: "Current number of tracked failed-key entries.",
		}),
		OffersSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "offers_size",
			Help: "Current number of keys with received offers.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "evictions_total",
			Help: "LRU evictions across both indices.",
		}),
		OffersAccept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "offers_accepted_total",
			Help: "Inbound offers accepted.",
		}),
		OffersReject: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "offers_rejected_total",
			Help: "Inbound offers rejected (neither we_asked nor chk he_asked).",
		}),
		OffersExpire: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "offers_expired_total",
			Help: "Offer records dropped by the cleaner for being past OFFER_EXPIRY.",
		}),
		UIDsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "uids_released_total",
			Help: "Transaction uids released by the offer serve pipeline.",
		}),
		PipelineTook: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "pipeline_task_seconds",
			Help:    "Latency of serial offer-pipeline tasks.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RegisterOn registers every collector with reg. It panics on duplicate
// registration, matching prometheus.MustRegister's contract.
func (m *Metrics) RegisterOn(reg prometheus.Registerer) {
	reg.MustRegister(
		m.EntriesSize,
		m.OffersSize,
		m.Evictions,
		m.OffersAccept,
		m.OffersReject,
		m.OffersExpire,
		m.UIDsReleased,
		m.PipelineTook,
	)
}

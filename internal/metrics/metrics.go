// Package metrics holds the Prometheus collectors of the write path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// writes by operation and outcome (ok or an error kind)
	Writes         *prometheus.CounterVec
	WriteDuration  *prometheus.HistogramVec
	Conflicts      prometheus.Counter
	ConfirmRetries prometheus.Counter
	StorageRetries prometheus.Counter
	SearchDegraded prometheus.Counter
	CacheHits      prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Writes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_casestudy_writes_total",
				Help: "Case study writes by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		WriteDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_casestudy_write_duration_seconds",
				Help:    "Duration of confirmed case study writes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_casestudy_conflicts_total",
			Help: "Updates rejected by the optimistic lock",
		}),
		ConfirmRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_casestudy_confirm_retries_total",
			Help: "Read-back attempts beyond the first while confirming a write",
		}),
		StorageRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_storage_retries_total",
			Help: "Retries of transient storage failures",
		}),
		SearchDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_search_refresh_degraded_total",
			Help: "Writes whose search projection refresh failed",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_casestudy_cache_hits_total",
			Help: "Reads served from the published record cache",
		}),
	}
}

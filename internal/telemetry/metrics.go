// Package telemetry holds the Prometheus metrics emitted by the pipeline's
// core components.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide registry of pipeline counters.
type Metrics struct {
	PagesFetchedTotal    *prometheus.CounterVec
	EntriesSelectedTotal *prometheus.CounterVec
	MagnetsAddedTotal    *prometheus.CounterVec
	MagnetsRejectedTotal *prometheus.CounterVec
	BanEventsTotal       prometheus.Counter
	RunOutcomesTotal     *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ProxiesAvailable     prometheus.Gauge
}

// New registers and returns a fresh Metrics set against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesFetchedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_pages_fetched_total",
			Help: "Index/detail pages fetched, by phase and result.",
		}, []string{"phase", "result"}),
		EntriesSelectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_entries_selected_total",
			Help: "Entries admitted by the phase filter.",
		}, []string{"phase"}),
		MagnetsAddedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_magnets_added_total",
			Help: "Magnets successfully handed to the torrent client.",
		}, []string{"category"}),
		MagnetsRejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_magnets_rejected_total",
			Help: "Magnets rejected by the torrent client.",
		}, []string{"category"}),
		BanEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_ban_events_total",
			Help: "Proxy ban events observed by the pool.",
		}),
		RunOutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_run_outcomes_total",
			Help: "Pipeline run outcomes, by RunStatus.",
		}, []string{"status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration, by module tag.",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),
		ProxiesAvailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_proxies_available",
			Help: "Number of proxies currently not on cooldown.",
		}),
	}
}

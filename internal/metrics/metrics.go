// Package metrics exposes Prometheus instrumentation for the distribution
// engine and process-level health for the ops endpoint.
package metrics

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

// Metrics holds the engine's Prometheus collectors. Each Metrics owns its
// registry so tests can create instances freely.
type Metrics struct {
	registry *prometheus.Registry

	// DistributionOutcomes counts distribution attempts by outcome kind
	// and mode ("" for unassigned outcomes).
	DistributionOutcomes *prometheus.CounterVec

	// AllocationDuration observes end-to-end distributeOne latency.
	AllocationDuration prometheus.Histogram

	// BatchRuns counts distributePending invocations.
	BatchRuns prometheus.Counter

	// LeadsIngested counts leads accepted by the intake API.
	LeadsIngested *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		DistributionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadrouter_distribution_outcomes_total",
				Help: "Distribution attempts by outcome kind and mode",
			},
			[]string{"kind", "mode"},
		),
		AllocationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadrouter_distribution_duration_seconds",
				Help:    "distributeOne latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		BatchRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leadrouter_distribution_batch_runs_total",
				Help: "distributePending runs",
			},
		),
		LeadsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadrouter_leads_ingested_total",
				Help: "Leads accepted by the intake API, by source",
			},
			[]string{"source"},
		),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOutcome records one distribution attempt.
func (m *Metrics) ObserveOutcome(kind, mode string, elapsed time.Duration) {
	m.DistributionOutcomes.WithLabelValues(kind, mode).Inc()
	m.AllocationDuration.Observe(elapsed.Seconds())
}

// =============================================================================
// PROCESS HEALTH
// =============================================================================

// ProcessHealth is a snapshot of this process for the health endpoint.
type ProcessHealth struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	Goroutines     int     `json:"goroutines"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
}

// HealthCollector gathers process-level health.
type HealthCollector struct {
	startTime time.Time
}

// NewHealthCollector creates a collector anchored at process start.
func NewHealthCollector() *HealthCollector {
	return &HealthCollector{startTime: time.Now()}
}

// Collect returns the current process snapshot. Metric read failures leave
// the corresponding fields zero rather than failing the health check.
func (c *HealthCollector) Collect() ProcessHealth {
	health := ProcessHealth{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			health.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			health.MemoryRSSBytes = mem.RSS
		}
	}
	return health
}

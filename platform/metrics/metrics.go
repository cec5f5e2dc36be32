// Package metrics exposes Prometheus instrumentation for ingestion and reconciliation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application collectors. A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	IngestRuns        *prometheus.CounterVec
	IngestRows        *prometheus.CounterVec
	IngestDurationSec prometheus.Histogram
	BatchCollisions   prometheus.Counter

	ComparisonRuns        prometheus.Counter
	ComparisonDivergences *prometheus.CounterVec
	ComparisonDurationSec prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	ingestRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_runs_total",
		Help: "Spreadsheet ingestion runs by outcome.",
	}, []string{"outcome"})
	ingestRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_rows_total",
		Help: "Service order rows classified during ingestion.",
	}, []string{"classification"})
	ingestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_duration_seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	collisions := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_batch_collisions_total"})

	compareRuns := prometheus.NewCounter(prometheus.CounterOpts{Name: "comparison_runs_total"})
	divergences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comparison_divergences_total",
		Help: "Divergences recorded by reason.",
	}, []string{"reason"})
	compareDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "comparison_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(ingestRuns, ingestRows, ingestDuration, collisions, compareRuns, divergences, compareDuration)
	return &Registry{
		reg:                   r,
		IngestRuns:            ingestRuns,
		IngestRows:            ingestRows,
		IngestDurationSec:     ingestDuration,
		BatchCollisions:       collisions,
		ComparisonRuns:        compareRuns,
		ComparisonDivergences: divergences,
		ComparisonDurationSec: compareDuration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveIngest records one finished ingestion run.
func (r *Registry) ObserveIngest(outcome string, inserted, updated, unchanged, skipped int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.IngestRuns.WithLabelValues(outcome).Inc()
	r.IngestRows.WithLabelValues("new").Add(float64(inserted))
	r.IngestRows.WithLabelValues("updated").Add(float64(updated))
	r.IngestRows.WithLabelValues("unchanged").Add(float64(unchanged))
	r.IngestRows.WithLabelValues("skipped").Add(float64(skipped))
	r.IngestDurationSec.Observe(elapsed.Seconds())
}

// ObserveCollision counts a batch identity collision.
func (r *Registry) ObserveCollision() {
	if r == nil {
		return
	}
	r.BatchCollisions.Inc()
}

// ObserveComparison records one persisted comparison run.
func (r *Registry) ObserveComparison(byReason map[string]int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.ComparisonRuns.Inc()
	for reason, n := range byReason {
		r.ComparisonDivergences.WithLabelValues(reason).Add(float64(n))
	}
	r.ComparisonDurationSec.Observe(elapsed.Seconds())
}

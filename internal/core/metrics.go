package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the import pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	rows           *prometheus.CounterVec
	duration       prometheus.Histogram
	commitDuration prometheus.Histogram
	generation     prometheus.Gauge
	entities       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_import_runs_total",
			Help: "Import attempts by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_import_rows_total",
			Help: "Data rows seen by the import pipeline by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "usage_import_duration_seconds",
			Help:    "Wall time of a whole import attempt.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "usage_import_commit_duration_seconds",
			Help:    "Time spent replacing the committed dataset.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usage_dataset_generation",
			Help: "Number of the currently committed dataset generation.",
		}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "usage_dataset_entities",
			Help: "Entities in the committed dataset by kind.",
		}, []string{"kind"}),
	}

	if registerer != nil {
		registerer.MustRegister(m.runs, m.rows, m.duration, m.commitDuration, m.generation, m.entities)
	}
	return m
}

func (m *Metrics) observeRun(run *ImportRun) {
	if m == nil {
		return
	}
	outcome := "success"
	if !run.Success {
		outcome = run.FailureKind
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(run.Duration().Seconds())
	m.rows.WithLabelValues("read").Add(float64(run.RowsRead))
	m.rows.WithLabelValues("accepted").Add(float64(run.RowsAccepted))
	m.rows.WithLabelValues("rejected").Add(float64(run.RowsRejected))
}

func (m *Metrics) observeCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) setGeneration(gen *Generation) {
	if m == nil || gen == nil {
		return
	}
	counts := gen.Dataset.Counts()
	m.generation.Set(float64(gen.Number))
	m.entities.WithLabelValues("partners").Set(float64(counts.Partners))
	m.entities.WithLabelValues("customers").Set(float64(counts.Customers))
	m.entities.WithLabelValues("products").Set(float64(counts.Products))
	m.entities.WithLabelValues("usages").Set(float64(counts.Usages))
}

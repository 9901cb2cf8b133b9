package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes relaxation progress as Prometheus collectors. It is a Sink.
type Metrics struct {
	Iteration         prometheus.Gauge
	Normalization     prometheus.Gauge
	MaxDisplacement   prometheus.Gauge
	FractionConverged prometheus.Gauge
	DensityError      prometheus.Gauge
	Clamped           prometheus.Counter
	Redistributed     prometheus.Counter
	IterationsTotal   *prometheus.CounterVec
	IterationDuration prometheus.Histogram
}

// NewMetrics registers the relaxation collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Iteration: f.NewGauge(prometheus.GaugeOpts{
			Name: "relax_iteration",
			Help: "Index of the last completed relaxation iteration",
		}),
		Normalization: f.NewGauge(prometheus.GaugeOpts{
			Name: "relax_normalization",
			Help: "Displacement normalization constant of the last iteration",
		}),
		MaxDisplacement: f.NewGauge(prometheus.GaugeOpts{
			Name: "relax_max_displacement",
			Help: "Largest particle displacement in mean interparticle distances",
		}),
		FractionConverged: f.NewGauge(prometheus.GaugeOpts{
			Name: "relax_fraction_converged",
			Help: "Fraction of particles below the convergence threshold",
		}),
		DensityError: f.NewGauge(prometheus.GaugeOpts{
			Name: "relax_density_error_mean",
			Help: "Mean relative error of estimated vs model density",
		}),
		Clamped: f.NewCounter(prometheus.CounterOpts{
			Name: "relax_clamped_total",
			Help: "Total displacements clamped to the hard ceiling",
		}),
		Redistributed: f.NewCounter(prometheus.CounterOpts{
			Name: "relax_redistributed_total",
			Help: "Total particles relocated by redistribution",
		}),
		IterationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relax_iterations_total",
				Help: "Total iterations by resulting status",
			},
			[]string{"status"},
		),
		IterationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relax_iteration_duration_seconds",
			Help:    "Wall time per relaxation iteration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
}

// RecordIteration updates the collectors from one iteration's stats.
func (m *Metrics) RecordIteration(s IterationStats) error {
	if m == nil {
		return nil
	}
	m.Iteration.Set(float64(s.Iteration))
	m.Normalization.Set(s.Normalization)
	m.MaxDisplacement.Set(s.MaxDisplacement)
	m.FractionConverged.Set(s.FractionConverged)
	m.DensityError.Set(s.DensityErrorMean)
	m.Clamped.Add(float64(s.Clamped))
	m.Redistributed.Add(float64(s.Redistributed))
	m.IterationsTotal.WithLabelValues(s.Status).Inc()
	m.IterationDuration.Observe(s.DurationMS / 1000)
	return nil
}

package docksmaker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the Monte-Carlo search counters. A nil *Metrics records nothing.
type Metrics struct {
	samplesTotal   *prometheus.CounterVec
	evalDuration   *prometheus.HistogramVec
	bestScore      prometheus.Gauge
	shootIterTotal prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docksmaker_samples_total",
				Help: "Total number of evaluated Monte-Carlo samples",
			},
			[]string{"fidelity", "outcome"},
		),
		evalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docksmaker_sample_duration_seconds",
				Help:    "Time spent propagating and scoring a sample",
				Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
			},
			[]string{"fidelity"},
		),
		bestScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docksmaker_best_score_meters",
				Help: "Score of the best sample of the last search",
			},
		),
		shootIterTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docksmaker_shooting_iterations_total",
				Help: "Total number of single shooting iterations",
			},
		),
	}
	reg.MustRegister(m.samplesTotal, m.evalDuration, m.bestScore, m.shootIterTotal)
	return m
}

func (m *Metrics) observeSample(s Sample) {
	if m == nil {
		return
	}
	outcome := "scored"
	if s.Err != nil {
		outcome = "discarded"
	}
	m.samplesTotal.WithLabelValues(s.Fidelity.String(), outcome).Inc()
}

func (m *Metrics) observeDuration(fid Fidelity, d time.Duration) {
	if m == nil {
		return
	}
	m.evalDuration.WithLabelValues(fid.String()).Observe(d.Seconds())
}

func (m *Metrics) observeBest(score float64) {
	if m == nil {
		return
	}
	m.bestScore.Set(score)
}

// ObserveShooting adds the iterations of a shooting run.
func (m *Metrics) ObserveShooting(r ShootingResult) {
	if m == nil {
		return
	}
	m.shootIterTotal.Add(float64(r.Iterations))
}

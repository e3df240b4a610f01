package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for record and beat throughput.
//
// Metrics:
//   - beatchaos_records_total{status} - records by "ok" or failure kind
//   - beatchaos_beats_total{outcome} - beats by "emitted" or rejection reason
//   - beatchaos_rows_total - feature rows produced
//   - beatchaos_record_duration_seconds - per-record processing time
//   - beatchaos_out_of_band_ratio - share of raw spectral energy outside the pass band
type Metrics struct {
	Records   *prometheus.CounterVec
	Beats     *prometheus.CounterVec
	Rows      prometheus.Counter
	Duration  prometheus.Histogram
	OutOfBand prometheus.Histogram
}

// NewMetrics registers the collectors on reg. Each registry may hold one set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beatchaos_records_total",
			Help: "Records processed, by status",
		}, []string{"status"}),
		Beats: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beatchaos_beats_total",
			Help: "Annotated beats, by outcome",
		}, []string{"outcome"}),
		Rows: f.NewCounter(prometheus.CounterOpts{
			Name: "beatchaos_rows_total",
			Help: "Feature rows produced",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "beatchaos_record_duration_seconds",
			Help:    "Time spent processing one record",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		OutOfBand: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "beatchaos_out_of_band_ratio",
			Help:    "Fraction of raw spectral energy outside the denoising pass band",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func (m *Metrics) observe(res Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if res.Failure != FailureNone {
		status = string(res.Failure)
	}
	m.Records.WithLabelValues(status).Inc()
	m.Duration.Observe(elapsed.Seconds())
	if res.Failure != FailureNone {
		return
	}
	for reason, n := range res.Rejected {
		m.Beats.WithLabelValues(string(reason)).Add(float64(n))
	}
	m.Beats.WithLabelValues("emitted").Add(float64(len(res.Rows)))
	m.Rows.Add(float64(len(res.Rows)))
}

func (m *Metrics) observeOutOfBand(ratio float64) {
	if m == nil {
		return
	}
	m.OutOfBand.Observe(ratio)
}

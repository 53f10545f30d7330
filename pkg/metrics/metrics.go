package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signing outcomes.
const (
	OutcomeSigned = "signed"
	OutcomeFailed = "failed"
)

// ProxyMetrics holds the collectors of the signing proxy.
type ProxyMetrics struct {
	SignedRequests   *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *ProxyMetrics {
	factory := promauto.With(reg)

	return &ProxyMetrics{
		// Labels: outcome (signed, failed)
		SignedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "caparica",
				Name:      "signed_requests_total",
				Help:      "Total number of outbound requests passed through the request signer",
			},
			[]string{"outcome"},
		),

		// Labels: status_code, "error" when no response was received
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "caparica",
				Name:      "upstream_requests_total",
				Help:      "Total number of requests forwarded to the upstream API",
			},
			[]string{"status_code"},
		),

		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "caparica",
				Name:      "upstream_duration_seconds",
				Help:      "Round-trip duration of forwarded requests",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
			},
		),
	}
}

// ObserveSigning counts one signing attempt.
func (m *ProxyMetrics) ObserveSigning(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSigned
	if err != nil {
		outcome = OutcomeFailed
	}
	m.SignedRequests.WithLabelValues(outcome).Inc()
}

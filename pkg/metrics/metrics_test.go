package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.UpstreamRequests.WithLabelValues("200").Inc()
	m.UpstreamDuration.Observe(0.2)
	m.ObserveSigning(nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"caparica_signed_requests_total",
		"caparica_upstream_requests_total",
		"caparica_upstream_duration_seconds",
	}, names)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}

func TestObserveSigning(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSigning(nil)
	m.ObserveSigning(nil)
	m.ObserveSigning(errors.New("signer failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignedRequests.WithLabelValues(OutcomeSigned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignedRequests.WithLabelValues(OutcomeFailed)))
}

func TestObserveSigning_NilMetrics(t *testing.T) {
	var m *ProxyMetrics
	assert.NotPanics(t, func() { m.ObserveSigning(nil) })
}

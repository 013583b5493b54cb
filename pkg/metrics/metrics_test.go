package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phi-labs/lambo/pkg/lb"
	"github.com/phi-labs/lambo/pkg/pool"
)

func counterOf(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}

func gaugeOf(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.Gauge.GetValue()
}

func TestObserveRequestBucketsByStatusClass(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveRequest("api", 200)
	reg.ObserveRequest("api", 204)
	reg.ObserveRequest("api", 503)

	assert.Equal(t, float64(2), counterOf(t, reg.RequestsTotal.WithLabelValues("api", "2xx")))
	assert.Equal(t, float64(1), counterOf(t, reg.RequestsTotal.WithLabelValues("api", "5xx")))
}

func TestObserveHealthSetsGaugeFromHealthiness(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveHealth("10.0.0.1:80", pool.NewHealthy())
	assert.Equal(t, float64(0), gaugeOf(t, reg.Health.WithLabelValues("10.0.0.1:80")))

	reg.ObserveHealth("10.0.0.1:80", pool.NewUnresponsive(502))
	assert.Equal(t, float64(2), gaugeOf(t, reg.Health.WithLabelValues("10.0.0.1:80")))
}

func TestTrackedStrategyUpdatesOpenConnectionsGauge(t *testing.T) {
	reg := NewRegistry()
	strategy := NewTrackedStrategy(lb.NewRoundRobin(), reg)

	strategy.OnOpen("10.0.0.1:80")
	strategy.OnOpen("10.0.0.1:80")
	assert.Equal(t, float64(2), gaugeOf(t, reg.OpenConnections.WithLabelValues("10.0.0.1:80")))

	strategy.OnClose("10.0.0.1:80")
	assert.Equal(t, float64(1), gaugeOf(t, reg.OpenConnections.WithLabelValues("10.0.0.1:80")))
}

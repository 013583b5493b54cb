package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phi-labs/lambo/pkg/pool"
)

func TestMonitorMarksHealthyBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	backend := pool.NewBackend(strings.TrimPrefix(server.URL, "http://"))
	p := &pool.Pool{
		Backends:  []*pool.Backend{backend},
		HealthCfg: pool.HealthProbeConfig{Path: "/", SlowThresholdMs: 1000, TimeoutMs: 2000},
	}

	m := NewMonitor(10*time.Millisecond, func() []*pool.Pool { return []*pool.Pool{p} }, nil)
	m.runCycle(context.Background())

	assert.Equal(t, pool.Healthy, backend.Healthiness().Kind)
}

func TestMonitorMarksUnresponsiveOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := pool.NewBackend(strings.TrimPrefix(server.URL, "http://"))
	p := &pool.Pool{
		Backends:  []*pool.Backend{backend},
		HealthCfg: pool.HealthProbeConfig{Path: "/", SlowThresholdMs: 1000, TimeoutMs: 2000},
	}

	m := NewMonitor(10*time.Millisecond, func() []*pool.Pool { return []*pool.Pool{p} }, nil)
	m.runCycle(context.Background())

	h := backend.Healthiness()
	require.Equal(t, pool.Unresponsive, h.Kind)
	assert.Equal(t, http.StatusInternalServerError, h.Status)
}

func TestMonitorMarksSlowOverThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	backend := pool.NewBackend(strings.TrimPrefix(server.URL, "http://"))
	p := &pool.Pool{
		Backends:  []*pool.Backend{backend},
		HealthCfg: pool.HealthProbeConfig{Path: "/", SlowThresholdMs: 5, TimeoutMs: 2000},
	}

	m := NewMonitor(10*time.Millisecond, func() []*pool.Pool { return []*pool.Pool{p} }, nil)
	m.runCycle(context.Background())

	assert.Equal(t, pool.Slow, backend.Healthiness().Kind)
}

func TestMonitorZeroIntervalNeverProbes(t *testing.T) {
	called := false
	p := &pool.Pool{}
	m := NewMonitor(0, func() []*pool.Pool { called = true; return []*pool.Pool{p} }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	assert.False(t, called)
}

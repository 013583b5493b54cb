// Package health implements the background probe loop of spec.md
// §4.4: one ticker per process, concurrent GET probes per cycle, each
// backend's Healthiness cell updated only when its classification
// changes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/metrics"
	"github.com/phi-labs/lambo/pkg/pool"
)

// PoolSource returns the current snapshot's backend pools. The
// monitor re-fetches it at the top of every cycle so a config reload
// takes effect on the next tick without restarting the loop.
type PoolSource func() []*pool.Pool

// Monitor runs the periodic probe loop described in spec.md §4.4. A
// zero Interval disables probing entirely, per the configuration
// contract in spec.md §6.
type Monitor struct {
	Interval time.Duration
	Pools    PoolSource
	Log      *logrus.Logger

	// Metrics is optional; left nil, the monitor just doesn't export
	// the health gauge (used by most tests).
	Metrics *metrics.Registry
}

func NewMonitor(interval time.Duration, pools PoolSource, log *logrus.Logger) *Monitor {
	return &Monitor{Interval: interval, Pools: pools, Log: log}
}

// Run blocks, probing once per tick, until ctx is canceled. A cycle's
// probes all complete (or are timed out) before the next tick is
// allowed to start a new one, per spec.md §4.4.
func (m *Monitor) Run(ctx context.Context) {
	if m.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range m.Pools() {
		for _, backend := range p.Backends {
			wg.Add(1)
			go func(p *pool.Pool, b *pool.Backend) {
				defer wg.Done()
				m.probeOne(ctx, p, b)
			}(p, backend)
		}
	}
	wg.Wait()
}

func (m *Monitor) probeOne(ctx context.Context, p *pool.Pool, backend *pool.Backend) {
	timeout := time.Duration(p.HealthCfg.TimeoutMs) * time.Millisecond
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, latencyMs, err := probe(probeCtx, backend.Address, p.HealthCfg.Path, timeout)
	classified := pool.ClassifyProbe(status, err, latencyMs, p.HealthCfg.SlowThresholdMs)

	if backend.StoreHealthiness(classified) && m.Log != nil {
		m.Log.WithFields(logrus.Fields{
			"pool_address": backend.Address,
			"healthiness":  classified.String(),
		}).Info("backend healthiness changed")
	}
	if m.Metrics != nil {
		m.Metrics.ObserveHealth(backend.Address, classified)
	}
}

func probe(ctx context.Context, address, path string, timeout time.Duration) (status int, latencyMs int64, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+path, nil)
	if reqErr != nil {
		return 0, 0, reqErr
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}

	start := time.Now()
	resp, doErr := client.Do(req)
	latencyMs = time.Since(start).Milliseconds()
	if doErr != nil {
		return 0, latencyMs, doErr
	}
	defer resp.Body.Close()
	return resp.StatusCode, latencyMs, nil
}

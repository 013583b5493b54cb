package config

import (
	"net/http"
	"time"

	"github.com/phi-labs/lambo/pkg/pool"
)

// newPoolClient builds the per-pool outgoing HTTP client. Its dialer
// is wrapped in a pool.ConnTracker so every successful backend
// connection reports open/close events to the pool's strategy,
// feeding LeastConnection's counters (spec.md §4.6).
func newPoolClient(cfg pool.ClientConfig, tracker *pool.ConnTracker) *http.Client {
	idleTimeout := cfg.PoolIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}
	maxIdlePerHost := cfg.PoolMaxIdlePerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = 2
	}

	transport := &http.Transport{
		DialContext:         tracker.DialContext,
		IdleConnTimeout:     idleTimeout,
		MaxIdleConnsPerHost: maxIdlePerHost,
	}
	return &http.Client{Transport: transport}
}

package metrics

import (
	"net"
	"net/http"

	"github.com/phi-labs/lambo/pkg/pool"
)

// TrackedStrategy decorates a pool.Strategy so every OnOpen/OnClose
// also updates the open-connections gauge, the same way lb.StickyCookie
// decorates a Strategy to add cookie affinity on top of an inner one.
type TrackedStrategy struct {
	Inner   pool.Strategy
	Metrics *Registry
}

func NewTrackedStrategy(inner pool.Strategy, registry *Registry) *TrackedStrategy {
	return &TrackedStrategy{Inner: inner, Metrics: registry}
}

func (t *TrackedStrategy) Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) pool.Selection {
	return t.Inner.Select(r, clientAddr, healthy)
}

func (t *TrackedStrategy) OnOpen(address string) {
	t.Inner.OnOpen(address)
	if t.Metrics != nil {
		t.Metrics.OpenConnections.WithLabelValues(address).Inc()
	}
}

func (t *TrackedStrategy) OnClose(address string) {
	t.Inner.OnClose(address)
	if t.Metrics != nil {
		t.Metrics.OpenConnections.WithLabelValues(address).Dec()
	}
}

// Package dispatcher implements the per-request algorithm of spec.md
// §4.8 on top of an atomically-swappable config.Snapshot (§4.7): an
// http.Handler that the two listeners (plain and TLS) share.
package dispatcher

import (
	"io"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/acme"
	"github.com/phi-labs/lambo/pkg/config"
	"github.com/phi-labs/lambo/pkg/metrics"
	"github.com/phi-labs/lambo/pkg/pool"
)

// Dispatcher holds the one mutable piece of process-wide state: a
// pointer to the current Snapshot. Readers load it once per request
// and never observe a torn read, since Snapshot itself is immutable
// once built (spec.md §4.7, §5).
type Dispatcher struct {
	current atomic.Pointer[config.Snapshot]
	acme    *acme.Coordinator
	log     *logrus.Logger
	scheme  pool.Scheme
	metrics *metrics.Registry
}

func New(scheme pool.Scheme, snapshot *config.Snapshot, acmeCoordinator *acme.Coordinator, log *logrus.Logger) *Dispatcher {
	d := &Dispatcher{acme: acmeCoordinator, log: log, scheme: scheme}
	d.Store(snapshot)
	return d
}

// WithMetrics attaches a metrics registry; requests are recorded
// against it once set. Left nil, ServeHTTP records nothing (the
// zero-value path exercised by most tests).
func (d *Dispatcher) WithMetrics(registry *metrics.Registry) *Dispatcher {
	d.metrics = registry
	return d
}

// Store publishes a new snapshot. In-flight requests that already
// loaded the previous one run to completion against it.
func (d *Dispatcher) Store(snapshot *config.Snapshot) {
	d.current.Store(snapshot)
}

func (d *Dispatcher) Snapshot() *config.Snapshot {
	return d.current.Load()
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.acme != nil && d.acme.IsChallengeRequest(r) {
		writeResponse(w, d.acme.RespondToChallenge(r))
		return
	}

	snapshot := d.current.Load()
	p := snapshot.PoolFor(r, d.scheme)
	if p == nil {
		http.NotFound(w, r)
		return
	}

	healthy := p.HealthyAddresses()
	if len(healthy) == 0 {
		http.Error(w, "", http.StatusBadGateway)
		return
	}

	tcpAddr, _ := net.ResolveTCPAddr("tcp", r.RemoteAddr)

	selection := p.Strategy.Select(r, tcpAddr, healthy)
	if selection.Address == "" {
		http.Error(w, "", http.StatusBadGateway)
		return
	}

	ctx := pool.HandlerContext{
		ClientAddr:  tcpAddr,
		BackendAddr: selection.Address,
		Client:      p.Client,
		Scheme:      d.scheme,
	}

	requestID := uuid.NewString()
	if d.log != nil {
		d.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"pool":       p.Name,
			"backend":    selection.Address,
		}).Debug("dispatching request")
	}

	resp, _ := p.Chain.Handle(r, ctx)
	if selection.ResponseMapper != nil {
		selection.ResponseMapper(resp)
	}

	if d.metrics != nil && resp != nil {
		d.metrics.ObserveRequest(p.Name, resp.StatusCode)
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *http.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(w, resp.Body)
	}
}

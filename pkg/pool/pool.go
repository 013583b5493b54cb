package pool

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// Scheme is the subset of {HTTP, HTTPS} a pool is reachable under.
type Scheme int

const (
	HTTP Scheme = iota
	HTTPS
)

func (s Scheme) String() string {
	if s == HTTPS {
		return "HTTPS"
	}
	return "HTTP"
}

// SchemeSet is a small set over the two schemes, matching spec.md §3's
// "subset of {HTTP, HTTPS}" pool attribute.
type SchemeSet map[Scheme]struct{}

func NewSchemeSet(schemes ...Scheme) SchemeSet {
	s := make(SchemeSet, len(schemes))
	for _, scheme := range schemes {
		s[scheme] = struct{}{}
	}
	return s
}

func (s SchemeSet) Contains(scheme Scheme) bool {
	_, ok := s[scheme]
	return ok
}

// Backend is one entry in a pool's ordered address list: an address
// string plus an atomically-swappable healthiness cell (spec.md §3).
type Backend struct {
	Address     string
	healthiness atomic.Value // Healthiness
}

func NewBackend(address string) *Backend {
	b := &Backend{Address: address}
	b.healthiness.Store(NewHealthy())
	return b
}

func (b *Backend) Healthiness() Healthiness {
	return b.healthiness.Load().(Healthiness)
}

// StoreHealthiness replaces the cell's value. Returns true if the
// classification actually changed, so callers can skip redundant log
// lines (spec.md §4.4: "updated only when classification changes").
func (b *Backend) StoreHealthiness(h Healthiness) bool {
	changed := b.Healthiness() != h
	if changed {
		b.healthiness.Store(h)
	}
	return changed
}

// HealthProbeConfig carries the per-pool probe parameters (spec.md §6).
type HealthProbeConfig struct {
	Path            string
	SlowThresholdMs int64
	TimeoutMs       int64
}

// ClientConfig configures the pool's outgoing HTTP transport (spec.md §6,
// original_source configuration.rs ClientConfig).
type ClientConfig struct {
	PoolIdleTimeout     time.Duration
	PoolMaxIdlePerHost  int
}

// Strategy is implemented by pkg/lb; declared here (rather than imported)
// to avoid a cyclic dependency between pool and lb.
type Strategy interface {
	Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) Selection
	OnOpen(address string)
	OnClose(address string)
}

// Selection binds a chosen address with an optional response mapper,
// applied by the dispatcher once the middleware chain has produced a
// response (spec.md §4.2).
type Selection struct {
	Address        string
	ResponseMapper func(*http.Response)
}

// Chain is implemented by pkg/middleware; declared here to avoid the
// same cyclic-dependency problem as Strategy.
type Chain interface {
	Handle(r *http.Request, ctx HandlerContext) (*http.Response, error)
}

// HandlerContext is threaded through the middleware chain down to the
// forwarding sink.
type HandlerContext struct {
	ClientAddr  *net.TCPAddr
	BackendAddr string
	Client      *http.Client
	Scheme      Scheme
}

// Pool is one configured backend pool (spec.md §3). Matcher is an
// interface value (pkg/matcher.Expr) kept untyped here for the same
// reason Strategy/Chain are: pool must not import matcher, lb, or
// middleware, since those packages depend back on pool's types.
type Pool struct {
	Name        string
	Matcher     Matcher
	Backends    []*Backend
	Schemes     SchemeSet
	Strategy    Strategy
	Chain       Chain
	Client      *http.Client
	ClientCfg   ClientConfig
	HealthCfg   HealthProbeConfig
}

// Matcher evaluates whether a pool accepts a given request.
type Matcher interface {
	Matches(r *http.Request) bool
}

// HealthyAddresses returns the addresses currently classified Healthy,
// in pool order. Per the Open Question decision in SPEC_FULL.md §5,
// Slow addresses are excluded along with Unresponsive ones.
func (p *Pool) HealthyAddresses() []string {
	addrs := make([]string, 0, len(p.Backends))
	for _, b := range p.Backends {
		if b.Healthiness().Kind == Healthy {
			addrs = append(addrs, b.Address)
		}
	}
	return addrs
}

// Lookup returns the Backend for an address, or nil.
func (p *Pool) Lookup(address string) *Backend {
	for _, b := range p.Backends {
		if b.Address == address {
			return b
		}
	}
	return nil
}

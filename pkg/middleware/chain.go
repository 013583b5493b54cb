// Package middleware implements the before/after request chain of
// spec.md §4.3: compression, HTTPS redirection, LDAP basic auth, rate
// limiting, body-size limits and custom error pages, terminated by a
// sink that forwards to the selected backend.
package middleware

import (
	"net/http"

	"github.com/phi-labs/lambo/pkg/pool"
)

// Middleware is one stage. ModifyRequest may return a non-nil response
// to short-circuit: subsequent stages' ModifyRequest never runs, and
// the short-circuiting stage's own ModifyResponse is skipped, but the
// stages before it still have their ModifyResponse applied as the
// chain unwinds (spec.md §7).
type Middleware interface {
	ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response)
	ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response
}

// Sink is the terminal stage: it forwards the request to the backend
// and always produces a response (a 502 on failure), never a Go error,
// matching spec.md §7's "internal errors ... converted to 502".
type Sink func(r *http.Request, ctx pool.HandlerContext) *http.Response

// Chain holds an ordered middleware list and the sink that terminates
// it. It implements pool.Chain.
type Chain struct {
	Middlewares []Middleware
	Sink        Sink
}

func NewChain(sink Sink, middlewares ...Middleware) *Chain {
	return &Chain{Middlewares: middlewares, Sink: sink}
}

func (c *Chain) Handle(r *http.Request, ctx pool.HandlerContext) (*http.Response, error) {
	return handleFrom(c.Middlewares, 0, r, ctx, c.Sink), nil
}

func handleFrom(mws []Middleware, i int, r *http.Request, ctx pool.HandlerContext, sink Sink) *http.Response {
	if i >= len(mws) {
		return sink(r, ctx)
	}

	mw := mws[i]
	nextReq, shortCircuit := mw.ModifyRequest(r, ctx)
	if shortCircuit != nil {
		return shortCircuit
	}

	resp := handleFrom(mws, i+1, nextReq, ctx, sink)
	return mw.ModifyResponse(resp, ctx)
}

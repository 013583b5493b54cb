package middleware

import (
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/pool"
)

// NewForwardSink builds the chain's terminal stage: it rewrites the
// request's authority to the selected backend, adds the forwarding
// headers of spec.md §4.3, issues the request through ctx.Client and
// returns a 502 on any transport error.
func NewForwardSink(log *logrus.Logger) Sink {
	hostname, _ := os.Hostname()
	return func(r *http.Request, ctx pool.HandlerContext) *http.Response {
		backendReq := r.Clone(r.Context())
		backendReq.URL.Scheme = "http"
		if ctx.Scheme == pool.HTTPS {
			backendReq.URL.Scheme = "https"
		}
		backendReq.URL.Host = ctx.BackendAddr
		backendReq.Host = ctx.BackendAddr
		backendReq.RequestURI = ""

		addForwardingHeaders(backendReq, ctx, hostname)

		resp, err := ctx.Client.Do(backendReq)
		if err != nil {
			return badGateway(log, err)
		}
		return resp
	}
}

func addForwardingHeaders(r *http.Request, ctx pool.HandlerContext, hostname string) {
	clientIP := ""
	port := "80"
	proto := "http"
	if ctx.ClientAddr != nil {
		clientIP = ctx.ClientAddr.IP.String()
	}
	if ctx.Scheme == pool.HTTPS {
		port = "443"
		proto = "https"
	}

	if existing := r.Header.Get("x-forwarded-for"); existing != "" {
		r.Header.Set("x-forwarded-for", existing+", "+clientIP)
	} else {
		r.Header.Set("x-forwarded-for", clientIP)
	}
	r.Header.Set("x-real-ip", clientIP)
	r.Header.Set("x-forwarded-port", port)
	r.Header.Set("x-forwarded-proto", proto)
	if hostname != "" {
		r.Header.Set("x-forwarded-server", hostname)
	}
}

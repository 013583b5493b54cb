package middleware

import (
	"net/http"

	"github.com/phi-labs/lambo/pkg/pool"
)

// HttpsRedirector sends a 301 to the HTTPS equivalent of any request
// that arrived on the plain listener (spec.md §4.3).
type HttpsRedirector struct{}

func NewHttpsRedirector() *HttpsRedirector { return &HttpsRedirector{} }

func (h *HttpsRedirector) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	if ctx.Scheme != pool.HTTP {
		return r, nil
	}

	host := r.Host
	if host == "" {
		return r, badRequest("missing host header")
	}

	httpsURL := "https://" + host + r.URL.RequestURI()

	resp := newResponse(http.StatusMovedPermanently, "")
	resp.Header.Set("Location", httpsURL)
	return r, resp
}

func (h *HttpsRedirector) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	return resp
}

package middleware

import (
	"net/http"
	"strconv"

	"github.com/phi-labs/lambo/pkg/pool"
)

// MaxBodySize rejects a request whose Content-Length exceeds the
// configured limit before the body is read. A missing Content-Length
// is let through unchecked (spec.md §4.3: streaming bodies are out of
// scope).
type MaxBodySize struct {
	Limit int64
}

func NewMaxBodySize(limit int64) *MaxBodySize {
	return &MaxBodySize{Limit: limit}
}

func (m *MaxBodySize) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	if length, ok := contentLength(r); ok && length > m.Limit {
		return r, requestEntityTooLarge()
	}
	return r, nil
}

func (m *MaxBodySize) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	return resp
}

func contentLength(r *http.Request) (int64, bool) {
	header := r.Header.Get("Content-Length")
	if header == "" {
		return 0, false
	}
	length, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return 0, false
	}
	return length, true
}

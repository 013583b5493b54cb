package middleware

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phi-labs/lambo/pkg/pool"
)

func ctxHTTP() pool.HandlerContext  { return pool.HandlerContext{Scheme: pool.HTTP} }
func ctxHTTPS() pool.HandlerContext { return pool.HandlerContext{Scheme: pool.HTTPS} }

func okSink(r *http.Request, ctx pool.HandlerContext) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Header: make(http.Header), Request: r}
}

func TestChainShortCircuitSkipsLaterRequestHooksButRunsEarlierResponseHooks(t *testing.T) {
	var order []string
	early := &recordingMiddleware{name: "early", order: &order}
	blocking := &recordingMiddleware{name: "blocking", order: &order, shortCircuit: true}
	late := &recordingMiddleware{name: "late", order: &order}

	chain := NewChain(func(r *http.Request, ctx pool.HandlerContext) *http.Response {
		order = append(order, "sink")
		return okSink(r, ctx)
	}, early, blocking, late)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := chain.Handle(req, ctxHTTP())
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	assert.Equal(t, []string{"early-request", "blocking-request", "early-response"}, order)
}

type recordingMiddleware struct {
	name         string
	order        *[]string
	shortCircuit bool
}

func (m *recordingMiddleware) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	*m.order = append(*m.order, m.name+"-request")
	if m.shortCircuit {
		return r, &http.Response{StatusCode: http.StatusTeapot, Header: make(http.Header)}
	}
	return r, nil
}

func (m *recordingMiddleware) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	*m.order = append(*m.order, m.name+"-response")
	return resp
}

func TestHttpsRedirectorRedirectsPlainRequests(t *testing.T) {
	h := NewHttpsRedirector()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/path?x=1", nil)
	req.Host = "example.com"

	_, resp := h.ModifyRequest(req, ctxHTTP())
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "https://example.com/path?x=1", resp.Header.Get("Location"))
}

func TestHttpsRedirectorPassesThroughTLSRequests(t *testing.T) {
	h := NewHttpsRedirector()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, resp := h.ModifyRequest(req, ctxHTTPS())
	assert.Nil(t, resp)
}

func TestMaxBodySizeRejectsOversizedRequests(t *testing.T) {
	m := NewMaxBodySize(10)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Length", "11")

	_, resp := m.ModifyRequest(req, ctxHTTP())
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMaxBodySizeAllowsMissingContentLength(t *testing.T) {
	m := NewMaxBodySize(10)
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	_, resp := m.ModifyRequest(req, ctxHTTP())
	assert.Nil(t, resp)
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, 60)
	ctx := pool.HandlerContext{ClientAddr: &net.TCPAddr{IP: []byte{10, 0, 0, 1}}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, r1 := rl.ModifyRequest(req, ctx)
	_, r2 := rl.ModifyRequest(req, ctx)
	_, r3 := rl.ModifyRequest(req, ctx)
	assert.Nil(t, r1)
	assert.Nil(t, r2)
	require.NotNil(t, r3)
	assert.Equal(t, http.StatusTooManyRequests, r3.StatusCode)
}

func TestCustomErrorPagesFallsBackToCanonicalBody(t *testing.T) {
	dir := t.TempDir()
	c := NewCustomErrorPages(dir, []int{404})

	resp := &http.Response{StatusCode: 404, Header: make(http.Header), Body: http.NoBody}
	out := c.ModifyResponse(resp, ctxHTTP())
	body, _ := io.ReadAll(out.Body)
	assert.Equal(t, "404 - Not Found\n", string(body))
}

func TestCustomErrorPagesUsesFileWhenPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte("<h1>missing</h1>"), 0o644))
	c := NewCustomErrorPages(dir, []int{404})

	resp := &http.Response{StatusCode: 404, Header: make(http.Header), Body: http.NoBody}
	out := c.ModifyResponse(resp, ctxHTTP())
	body, _ := io.ReadAll(out.Body)
	assert.Equal(t, "<h1>missing</h1>", string(body))
}

func TestCompressionPicksHighestQualitySupported(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip;q=0.5, br;q=0.8, deflate;q=0.8")
	name, ok := pickEncoding(req)
	require.True(t, ok)
	assert.Equal(t, "br", name) // tie between br/deflate broken by first appearance
}

func TestCompressionSkipsUnacceptableZeroQuality(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip;q=0, br;q=0.2")
	name, ok := pickEncoding(req)
	require.True(t, ok)
	assert.Equal(t, "br", name)
}

func TestCompressionLeavesExistingEncodingAlone(t *testing.T) {
	c := NewCompression()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp := &http.Response{StatusCode: 200, Header: http.Header{"Content-Encoding": []string{"identity"}}, Request: req, Body: http.NoBody}
	out := c.ModifyResponse(resp, ctxHTTP())
	assert.Equal(t, "identity", out.Header.Get("Content-Encoding"))
}

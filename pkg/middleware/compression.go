package middleware

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/phi-labs/lambo/pkg/pool"
)

// Compression picks the best-quality supported encoding from the
// client's Accept-Encoding header and compresses the response body
// with it (spec.md §4.3). Supported encodings: br, deflate, gzip; a
// quality tie goes to the encoding listed first in the header.
type Compression struct{}

func NewCompression() *Compression { return &Compression{} }

func (c *Compression) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	return r, nil
}

func (c *Compression) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	if resp == nil || resp.Header.Get("Content-Encoding") != "" {
		return resp
	}

	encoding, ok := pickEncoding(resp.Request)
	if !ok {
		return resp
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}

	compressed, err := compress(encoding, body)
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp
	}

	resp.Body = io.NopCloser(bytes.NewReader(compressed))
	resp.Header.Set("Content-Encoding", encoding)
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp
}

var supportedEncodings = []string{"br", "deflate", "gzip"}

// pickEncoding parses the Accept-Encoding header per the quality-value
// grammar: comma-separated clauses, each an encoding token with an
// optional ";q=" value in [0, 1] with up to three fractional digits.
// q=0 marks an encoding unacceptable; unknown encodings are ignored.
// Ties are broken by order of first appearance in the header.
func pickEncoding(req *http.Request) (string, bool) {
	if req == nil {
		return "", false
	}
	header := req.Header.Get("Accept-Encoding")
	if header == "" {
		return "", false
	}

	type candidate struct {
		name  string
		q     float64
		order int
	}
	var candidates []candidate
	for i, clause := range strings.Split(header, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		name := clause
		q := 1.0
		if idx := strings.Index(clause, ";"); idx >= 0 {
			name = strings.TrimSpace(clause[:idx])
			params := clause[idx+1:]
			if qv, ok := parseQValue(params); ok {
				q = qv
			}
		}
		if !isSupported(name) || q <= 0 {
			continue
		}
		candidates = append(candidates, candidate{name: name, q: q, order: i})
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].order < candidates[j].order
	})
	return candidates[0].name, true
}

func isSupported(name string) bool {
	for _, s := range supportedEncodings {
		if s == name {
			return true
		}
	}
	return false
}

func parseQValue(params string) (float64, bool) {
	for _, p := range strings.Split(params, ";") {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "q=") {
			continue
		}
		raw := strings.TrimPrefix(p, "q=")
		dot := strings.Index(raw, ".")
		if dot >= 0 && len(raw)-dot-1 > 3 {
			raw = raw[:dot+4]
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, true
	}
	return 0, false
}

func compress(encoding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch encoding {
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "deflate":
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

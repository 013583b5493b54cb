package middleware

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/phi-labs/lambo/pkg/pool"
)

// CustomErrorPages replaces the body of responses whose status code is
// in the configured set with the contents of <location>/<code>.html,
// falling back to a canonical "<code> - <reason>\n" string when the
// file is missing (spec.md §4.3).
type CustomErrorPages struct {
	Location string
	Errors   map[int]struct{}
}

func NewCustomErrorPages(location string, errors []int) *CustomErrorPages {
	set := make(map[int]struct{}, len(errors))
	for _, code := range errors {
		set[code] = struct{}{}
	}
	return &CustomErrorPages{Location: location, Errors: set}
}

func (c *CustomErrorPages) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	return r, nil
}

func (c *CustomErrorPages) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	if resp == nil {
		return resp
	}
	if _, ok := c.Errors[resp.StatusCode]; !ok {
		return resp
	}

	resp.Header.Del("Content-Length")
	resp.Header.Del("Content-Encoding")

	path := filepath.Join(c.Location, strconv.Itoa(resp.StatusCode)+".html")
	body, err := os.ReadFile(path)
	if err != nil {
		reason := http.StatusText(resp.StatusCode)
		body = []byte(strconv.Itoa(resp.StatusCode) + " - " + reason + "\n")
	}

	if resp.Body != nil {
		resp.Body.Close()
	}
	resp.Body = io.NopCloser(strings.NewReader(string(body)))
	resp.ContentLength = int64(len(body))
	return resp
}

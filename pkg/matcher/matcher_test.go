package matcher

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndOr(t *testing.T) {
	expr, err := Parse("(Host('a.de') || Host('b.de')) && Method('GET')")
	require.NoError(t, err)

	want := And(Or(Host("a.de"), Host("b.de")), Method("GET"))
	assert.True(t, expr.Equal(want))

	getReq := httptest.NewRequest(http.MethodGet, "http://a.de/", nil)
	getReq.Host = "a.de"
	assert.True(t, expr.Matches(getReq))

	postReq := httptest.NewRequest(http.MethodPost, "http://a.de/", nil)
	postReq.Host = "a.de"
	assert.False(t, expr.Matches(postReq))
}

func TestParseMixedOperatorsRequireParens(t *testing.T) {
	_, err := Parse("Host('a') && Host('b') || Host('c')")
	assert.Error(t, err)
}

func TestParseEscapes(t *testing.T) {
	expr, err := Parse(`Host('whatisup\'.localhost')`)
	require.NoError(t, err)
	assert.Equal(t, "whatisup'.localhost", expr.Str)
}

func TestParseEmptyHost(t *testing.T) {
	expr, err := Parse("Host('')")
	require.NoError(t, err)
	assert.True(t, expr.Equal(Host("")))
}

func TestParseQuery(t *testing.T) {
	expr, err := Parse("Query('key', 'value')")
	require.NoError(t, err)
	assert.True(t, expr.Equal(Query("key", "value")))
}

func TestParseCustomMethod(t *testing.T) {
	expr, err := Parse("Method('YOLO')")
	require.NoError(t, err)
	assert.Equal(t, "YOLO", expr.Str)
}

func TestRoundTripEquality(t *testing.T) {
	src := "Host('a.de') && (Path('/x') || PathRegexp('^/admin'))"
	a, err := Parse(src)
	require.NoError(t, err)
	b, err := Parse(src)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestMatchesHostRegexp(t *testing.T) {
	expr, err := Parse(`HostRegexp('^(www\.)?google.de$')`)
	require.NoError(t, err)

	for host, want := range map[string]bool{
		"google.de":     true,
		"www.google.de": true,
		"www.youtube.de": false,
	} {
		r := httptest.NewRequest(http.MethodGet, "http://"+host+"/", nil)
		r.Host = host
		assert.Equal(t, want, expr.Matches(r), host)
	}
}

func TestMatchesPath(t *testing.T) {
	expr := Path("/admin")
	r1 := httptest.NewRequest(http.MethodGet, "https://google.de/admin", nil)
	r2 := httptest.NewRequest(http.MethodGet, "https://google.de/", nil)
	assert.True(t, expr.Matches(r1))
	assert.False(t, expr.Matches(r2))
}

func TestMatchesQuery(t *testing.T) {
	expr := Query("admin", "true")
	r1 := httptest.NewRequest(http.MethodGet, "https://google.de?admin=true", nil)
	r2 := httptest.NewRequest(http.MethodGet, "https://google.de/", nil)
	assert.True(t, expr.Matches(r1))
	assert.False(t, expr.Matches(r2))
}

func TestParseUnrecognized(t *testing.T) {
	_, err := Parse("Bogus('x')")
	assert.Error(t, err)
}

func TestParseInvalidRegex(t *testing.T) {
	_, err := Parse("PathRegexp('(')")
	assert.Error(t, err)
}

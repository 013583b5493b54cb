package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phi-labs/lambo/pkg/lb"
	"github.com/phi-labs/lambo/pkg/pool"
)

const minimalYAML = `
http_address: "[::]:8080"
backend_pools:
  - matcher: "Host('example.com')"
    addresses: ["10.0.0.1:80", "10.0.0.2:80"]
    schemes: ["HTTP"]
    health_config:
      slow_threshold: 200
      timeout: 400
      path: "/healthz"
    strategy:
      RoundRobin: {}
    middlewares:
      - Compression: {}
      - MaxBodySize:
          limit: 1048576
certificates:
  example.com:
    kind: Local
    certificate_path: cert.pem
    private_key_path: key.pem
health_interval:
  check_every: 30
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lambo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadBuildsPoolFromMinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	snapshot, err := Load(path, nil, nil)
	require.NoError(t, err)

	require.Len(t, snapshot.Pools, 1)
	p := snapshot.Pools[0]
	assert.True(t, p.Schemes.Contains(pool.HTTP))
	assert.False(t, p.Schemes.Contains(pool.HTTPS))
	assert.Len(t, p.Backends, 2)
	assert.Equal(t, int64(200), p.HealthCfg.SlowThresholdMs)
	assert.Equal(t, "/healthz", p.HealthCfg.Path)
	_, isRoundRobin := p.Strategy.(*lb.RoundRobin)
	assert.True(t, isRoundRobin)

	cert := snapshot.Certificates["example.com"]
	assert.Equal(t, CertificateLocal, cert.Kind)
	assert.Contains(t, cert.CertificatePath, "cert.pem")
}

func TestLoadResolvesRelativeCertificatePaths(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	snapshot, err := Load(path, nil, nil)
	require.NoError(t, err)

	cert := snapshot.Certificates["example.com"]
	assert.True(t, filepath.IsAbs(cert.CertificatePath))
}

func TestLoadRejectsInvalidMatcher(t *testing.T) {
	path := writeConfig(t, `
backend_pools:
  - matcher: "Bogus('x')"
    addresses: ["10.0.0.1:80"]
    schemes: ["HTTP"]
    strategy:
      Random: {}
`)
	_, err := Load(path, nil, nil)
	assert.Error(t, err)
}

func TestLoadDecodesStickyCookieWithInnerStrategy(t *testing.T) {
	path := writeConfig(t, `
backend_pools:
  - matcher: "Host('example.com')"
    addresses: ["10.0.0.1:80"]
    schemes: ["HTTP"]
    strategy:
      StickyCookie:
        cookie_name: lb
        http_only: true
        secure: false
        same_site: Lax
        inner:
          IPHash: {}
`)
	snapshot, err := Load(path, nil, nil)
	require.NoError(t, err)

	sticky, ok := snapshot.Pools[0].Strategy.(*lb.StickyCookie)
	require.True(t, ok)
	assert.Equal(t, "lb", sticky.Config.CookieName)
	_, innerIsIPHash := sticky.Inner.(*lb.IPHash)
	assert.True(t, innerIsIPHash)
}

func TestLoadDefaultsListenAddressesWhenAbsent(t *testing.T) {
	path := writeConfig(t, `
backend_pools: []
`)
	snapshot, err := Load(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, snapshot.HTTPAddress)
	assert.Equal(t, defaultHTTPSAddress, snapshot.HTTPSAddress)
}

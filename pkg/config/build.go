package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/matcher"
	"github.com/phi-labs/lambo/pkg/metrics"
	"github.com/phi-labs/lambo/pkg/middleware"
	"github.com/phi-labs/lambo/pkg/pool"
)

const (
	defaultHTTPAddress  = "[::]:80"
	defaultHTTPSAddress = "[::]:443"
)

// build converts a parsed rawConfig into an immutable Snapshot,
// resolving relative certificate paths against baseDir (the config
// file's directory, per spec.md §6). A build error is a fatal
// configuration error; the caller is expected to retain the prior
// snapshot (spec.md §4.1, §7).
func build(raw *rawConfig, baseDir string, log *logrus.Logger, registry *metrics.Registry) (*Snapshot, error) {
	httpAddr := raw.HTTPAddress
	if httpAddr == "" {
		httpAddr = defaultHTTPAddress
	}
	httpsAddr := raw.HTTPSAddress
	if httpsAddr == "" {
		httpsAddr = defaultHTTPSAddress
	}

	pools := make([]*pool.Pool, 0, len(raw.BackendPools))
	for i, rawPool := range raw.BackendPools {
		p, err := buildPool(rawPool, log, registry)
		if err != nil {
			return nil, fmt.Errorf("config: backend pool at index %d: %w", i, err)
		}
		pools = append(pools, p)
	}

	certs := make(map[string]CertificateSpec, len(raw.Certificates))
	for sni, rawCert := range raw.Certificates {
		certs[sni] = buildCertificate(rawCert, baseDir)
	}

	interval := time.Duration(raw.HealthInterval.CheckEvery) * time.Second

	return &Snapshot{
		HTTPAddress:    httpAddr,
		HTTPSAddress:   httpsAddr,
		HealthInterval: interval,
		Pools:          pools,
		Certificates:   certs,
	}, nil
}

func buildPool(raw rawBackendPool, log *logrus.Logger, registry *metrics.Registry) (*pool.Pool, error) {
	expr, err := matcher.Parse(raw.Matcher)
	if err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}

	backends := make([]*pool.Backend, 0, len(raw.Addresses))
	for _, addr := range raw.Addresses {
		backends = append(backends, pool.NewBackend(addr))
	}

	schemes := pool.NewSchemeSet()
	for _, s := range raw.Schemes {
		switch s {
		case "HTTP":
			schemes[pool.HTTP] = struct{}{}
		case "HTTPS":
			schemes[pool.HTTPS] = struct{}{}
		default:
			return nil, fmt.Errorf("scheme: unknown scheme %q", s)
		}
	}

	strategy, err := decodeStrategy(raw.Strategy)
	if err != nil {
		return nil, err
	}

	middlewares, err := decodeMiddlewares(raw.Middlewares, log)
	if err != nil {
		return nil, err
	}

	healthCfg := pool.HealthProbeConfig{
		SlowThresholdMs: orDefault(raw.HealthConfig.SlowThresholdMs, 300),
		TimeoutMs:       orDefault(raw.HealthConfig.TimeoutMs, 500),
		Path:            raw.HealthConfig.Path,
	}
	if healthCfg.Path == "" {
		healthCfg.Path = "/"
	}

	clientCfg := pool.ClientConfig{}
	if raw.Client != nil {
		clientCfg.PoolIdleTimeout = time.Duration(raw.Client.PoolIdleTimeoutSec) * time.Second
		clientCfg.PoolMaxIdlePerHost = raw.Client.PoolMaxIdlePerHost
	}

	poolStrategy := strategy
	if registry != nil {
		poolStrategy = metrics.NewTrackedStrategy(strategy, registry)
	}
	tracker := &pool.ConnTracker{Strategy: poolStrategy}
	client := newPoolClient(clientCfg, tracker)

	sink := middleware.NewForwardSink(log)
	chain := middleware.NewChain(sink, middlewares...)

	return &pool.Pool{
		Name:      raw.Matcher,
		Matcher:   expr,
		Backends:  backends,
		Schemes:   schemes,
		Strategy:  poolStrategy,
		Chain:     chain,
		Client:    client,
		ClientCfg: clientCfg,
		HealthCfg: healthCfg,
	}, nil
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func buildCertificate(raw rawCertificate, baseDir string) CertificateSpec {
	spec := CertificateSpec{
		Staging:  raw.Staging,
		Email:    raw.Email,
		AltNames: raw.AltNames,
	}
	if raw.Kind == "ACME" {
		spec.Kind = CertificateACME
		spec.PersistDir = resolvePath(baseDir, raw.PersistDir)
		return spec
	}
	spec.Kind = CertificateLocal
	spec.CertificatePath = resolvePath(baseDir, raw.CertificatePath)
	spec.PrivateKeyPath = resolvePath(baseDir, raw.PrivateKeyPath)
	return spec
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

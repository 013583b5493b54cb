// Command lambo runs the reverse proxy and load balancer: it loads a
// YAML config, serves plain and TLS listeners behind the same request
// dispatcher, probes backend health on a timer, answers ACME HTTP-01
// challenge requests, and hot-reloads on config writes. It does not
// start ACME issuance or renewal for any configured certificate.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/phi-labs/lambo/pkg/acme"
	"github.com/phi-labs/lambo/pkg/config"
	"github.com/phi-labs/lambo/pkg/dispatcher"
	"github.com/phi-labs/lambo/pkg/health"
	"github.com/phi-labs/lambo/pkg/metrics"
	"github.com/phi-labs/lambo/pkg/pool"
)

func main() {
	configPath := flag.StringP("config", "c", "./lambo.yaml", "path to configuration file")
	metricsAddr := flag.String("metrics-address", "", "address to serve /metrics on (empty disables it)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(*configPath, *metricsAddr, log); err != nil {
		log.WithError(err).Fatal("lambo exited with an error")
	}
}

func run(configPath, metricsAddr string, log *logrus.Logger) error {
	registry := metrics.NewRegistry()

	snapshot, err := config.Load(configPath, log, registry)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}
	log.WithFields(logrus.Fields{
		"config":        configPath,
		"http_address":  snapshot.HTTPAddress,
		"https_address": snapshot.HTTPSAddress,
	}).Info("starting lambo")

	issuer := acme.NewAcmezIssuer()
	coordinator := acme.NewCoordinator(issuer, log)
	coordinator.Metrics = registry

	httpDispatcher := dispatcher.New(pool.HTTP, snapshot, coordinator, log).WithMetrics(registry)
	httpsDispatcher := dispatcher.New(pool.HTTPS, snapshot, coordinator, log).WithMetrics(registry)

	monitor := health.NewMonitor(snapshot.HealthInterval, func() []*pool.Pool { return httpDispatcher.Snapshot().Pools }, log)
	monitor.Metrics = registry

	watcher := config.NewWatcher(configPath, log, registry, func(s *config.Snapshot) {
		httpDispatcher.Store(s)
		httpsDispatcher.Store(s)
		monitor.Interval = s.HealthInterval
		log.WithField("config", configPath).Info("configuration reloaded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	watcherStop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(watcherStop); err != nil {
			log.WithError(err).Warn("config watcher stopped")
		}
	}()

	servers := []*http.Server{
		{Addr: snapshot.HTTPAddress, Handler: httpDispatcher},
	}

	httpsServer := &http.Server{
		Addr:    snapshot.HTTPSAddress,
		Handler: httpsDispatcher,
		TLSConfig: &tls.Config{
			GetCertificate: certResolver(httpsDispatcher, log),
		},
	}
	servers = append(servers, httpsServer)

	if metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
		servers = append(servers, metricsServer)
	}

	errs := make(chan error, len(servers))
	for i, srv := range servers {
		srv := srv
		isTLS := srv == httpsServer
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if isTLS {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				errs <- fmt.Errorf("listener %d (%s): %w", i, srv.Addr, err)
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errs:
		log.WithError(err).Error("listener failed, shutting down")
	}

	close(watcherStop)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("listener shutdown did not complete cleanly")
		}
	}

	wg.Wait()
	return nil
}

// certResolver implements tls.Config.GetCertificate by looking up the
// client's SNI name in the current snapshot's certificate map and
// loading the keypair from its certificate and key paths. Only Local
// entries carry those paths: for an ACME entry the load fails and the
// handshake is aborted, and the coordinator writes no issued
// certificate to disk.
func certResolver(d *dispatcher.Dispatcher, log *logrus.Logger) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	var mu sync.Mutex
	cache := make(map[string]*tls.Certificate)

	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		spec, ok := d.Snapshot().Certificates[hello.ServerName]
		if !ok {
			return nil, fmt.Errorf("no certificate configured for %q", hello.ServerName)
		}

		mu.Lock()
		defer mu.Unlock()
		if cert, cached := cache[hello.ServerName]; cached {
			return cert, nil
		}

		cert, err := tls.LoadX509KeyPair(spec.CertificatePath, spec.PrivateKeyPath)
		if err != nil {
			log.WithError(err).WithField("sni_name", hello.ServerName).Error("loading certificate")
			return nil, err
		}
		cache[hello.ServerName] = &cert
		return &cert, nil
	}
}

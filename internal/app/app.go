// Package app wires configuration into the signing proxy's components.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"caparica-client/config"
	httpHandler "caparica-client/internal/adapter/http/handler"
	"caparica-client/internal/adapter/http/transport"
	redisStorage "caparica-client/internal/adapter/storage/redis"
	"caparica-client/internal/core/ports"
	"caparica-client/internal/service"
	"caparica-client/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Signing bundles the request signer with the resources backing it.
type Signing struct {
	Signer         *service.RequestSigner
	HealthCheckers []ports.HealthChecker

	closers []func() error
}

// Close releases connections opened by NewSigning.
func (s *Signing) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewSigning builds the identity provider, the HMAC signer and the request
// signer described by cfg. The Redis identity source connects eagerly so a
// bad address fails at startup.
func NewSigning(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Signing, error) {
	if cfg.Client.Code == "" {
		return nil, errors.New("client.code is required")
	}

	s := &Signing{}

	var identity ports.IdentityProvider
	switch cfg.Client.Source {
	case config.IdentitySourceStatic:
		if cfg.Client.Secret == "" {
			return nil, errors.New("client.secret is required for the static identity source")
		}
		identity = service.NewStaticIdentityProvider(cfg.Client.Code, cfg.Client.Secret)

	case config.IdentitySourceRedis:
		var encSvc ports.EncryptionService
		if cfg.Client.EncryptionKey != "" {
			aes, err := service.NewAESEncryptionService(cfg.Client.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("client.encryption_key: %w", err)
			}
			encSvc = aes
		}

		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		s.HealthCheckers = append(s.HealthCheckers, redisStorage.NewHealthCheck(rdb))

		store := redisStorage.NewIdentityStore(rdb, cfg.Redis.KeyPrefix)
		identity = service.NewStoredIdentityProvider(cfg.Client.Code, store, encSvc)

	default:
		return nil, fmt.Errorf("unknown client.source %q", cfg.Client.Source)
	}

	signingCfg, err := cfg.Signing.Domain()
	if err != nil {
		s.Close()
		return nil, err
	}

	hmacSvc, err := service.NewHMACSignatureService(cfg.Signing.Algorithm, cfg.Signing.Encoding)
	if err != nil {
		s.Close()
		return nil, err
	}

	signer, err := service.NewRequestSigner(identity, hmacSvc, signingCfg, service.WithLogger(log))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Signer = signer

	log.Info().
		Str("client", cfg.Client.Code).
		Str("identity_source", cfg.Client.Source).
		Str("algorithm", hmacSvc.Algorithm()).
		Bool("include_path", signingCfg.IncludePath).
		Bool("include_method", signingCfg.IncludeMethod).
		Msg("request signer ready")

	return s, nil
}

// NewRegistry returns a Prometheus registry with the Go runtime and process
// collectors plus the proxy's own metrics.
func NewRegistry() (*prometheus.Registry, *metrics.ProxyMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// NewServer assembles the signing transport, the proxy handler and the router
// into an HTTP server listening on cfg.Server.
func NewServer(cfg *config.Config, signing *Signing, reg *prometheus.Registry, m *metrics.ProxyMetrics, log zerolog.Logger) (*http.Server, error) {
	rt := transport.NewTransport(nil, signing.Signer,
		transport.WithMetrics(m),
		transport.WithLogger(log),
	)

	proxy, err := httpHandler.NewProxyHandler(httpHandler.ProxyConfig{
		UpstreamURL:   cfg.Upstream.URL,
		Timeout:       cfg.Upstream.Timeout,
		Transport:     rt,
		SignedHeaders: signing.Signer.Config().Keys.Names(),
		Metrics:       m,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Proxy:          proxy,
		HealthCheckers: signing.HealthCheckers,
		Gatherer:       reg,
		MaxBodySize:    cfg.Server.MaxBodySize,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

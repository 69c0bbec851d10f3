package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"wagerchain/config"
	"wagerchain/core"
	gwconfig "wagerchain/gateway/config"
	"wagerchain/gateway/middleware"
	"wagerchain/gateway/routes"
	"wagerchain/gateway/store"
	"wagerchain/gateway/stream"
)

// loadGatewayConfig reads the gateway YAML named by the node config. Without
// a file the defaults apply and the node ListenAddress is used. A dev node
// without an auth secret falls back to header-based callers.
func loadGatewayConfig(nodeConfigPath string, cfg *config.Config, env string, logger *slog.Logger) (gwconfig.Config, error) {
	path := strings.TrimSpace(cfg.Gateway.ConfigFile)
	if path != "" {
		path = resolvePath(filepath.Dir(nodeConfigPath), path)
		gw, err := gwconfig.Load(path)
		if err != nil {
			return gwconfig.Config{}, fmt.Errorf("gateway config %s: %w", path, err)
		}
		return gw, nil
	}
	gw, err := gwconfig.Load("")
	if err == nil {
		gw.ListenAddress = cfg.ListenAddress
		return gw, nil
	}
	if !errors.Is(err, gwconfig.ErrAuthSecretMissing) || !strings.EqualFold(env, "dev") {
		return gwconfig.Config{}, fmt.Errorf("gateway config: %w", err)
	}
	logger.Warn("gateway auth disabled: no secret configured in dev environment",
		slog.String("env_var", gwconfig.EnvHMACSecret))
	gw = gwconfig.Default()
	gw.Auth.Enabled = false
	gw.ListenAddress = cfg.ListenAddress
	return gw, nil
}

type gateway struct {
	server      *http.Server
	listener    net.Listener
	tlsConfig   *tls.Config
	logger      *slog.Logger
	idempotency *store.IdempotencyStore
	audit       *store.AuditLog
	unsubscribe func()
}

func newGateway(cfg gwconfig.Config, node *core.Node, history routes.History, logger *slog.Logger) (*gateway, error) {
	gw := &gateway{logger: logger.With(slog.String("component", "gateway"))}
	ok := false
	defer func() {
		if !ok {
			gw.Close()
		}
	}()

	if path := strings.TrimSpace(cfg.Storage.IdempotencyPath); path != "" {
		idem, err := store.OpenIdempotency(path, cfg.Storage.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("open idempotency store: %w", err)
		}
		gw.idempotency = idem
		if removed, err := idem.Prune(); err != nil {
			gw.logger.Warn("idempotency prune failed", slog.Any("error", err))
		} else if removed > 0 {
			gw.logger.Info("pruned idempotency records", slog.Int("removed", removed))
		}
	}
	if path := strings.TrimSpace(cfg.Storage.AuditPath); path != "" {
		audit, err := store.OpenAuditLog(path)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		gw.audit = audit
	}

	hub := stream.NewHub(cfg.Stream.BufferSize, cfg.Stream.WriteTimeout, gw.logger)
	gw.unsubscribe = node.Subscribe(hub.Publish)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, gw.logger)

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, entry := range cfg.RateLimits {
		limits[entry.ID] = middleware.RateLimit{RequestsPerMinute: entry.RequestsPerMinute, Burst: entry.Burst}
	}
	for _, id := range []string{routes.LimitRead, routes.LimitWrite} {
		if _, ok := cfg.RateLimit(id); !ok {
			gw.logger.Warn("no rate limit configured", slog.String("limit", id))
		}
	}

	router := routes.New(routes.Config{
		Node: node,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, gw.logger),
		RateLimiter:   middleware.NewRateLimiter(limits, gw.logger),
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			MaxAge:         cfg.Security.CORSMaxAge,
		},
		Idempotency: gw.idempotency,
		Audit:       gw.audit,
		Stream:      hub,
		History:     history,
		Logger:      gw.logger,
	})

	handler := http.Handler(router)
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, "wager-gateway")
	}

	if cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS key pair: %w", err)
		}
		gw.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	gw.server = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    gw.tlsConfig,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	gw.listener = listener
	ok = true
	return gw, nil
}

// Serve blocks until the server stops.
func (g *gateway) Serve() error {
	scheme := "http"
	listener := g.listener
	if g.tlsConfig != nil {
		scheme = "https"
		listener = tls.NewListener(listener, g.tlsConfig)
	}
	g.logger.Info("gateway listening", slog.String("url", scheme+"://"+g.listener.Addr().String()))
	return g.server.Serve(listener)
}

func (g *gateway) Addr() string {
	return g.listener.Addr().String()
}

func (g *gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// Close releases the gateway stores and stops event delivery.
func (g *gateway) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
	if g.idempotency != nil {
		_ = g.idempotency.Close()
		g.idempotency = nil
	}
	if g.audit != nil {
		_ = g.audit.Close()
		g.audit = nil
	}
}

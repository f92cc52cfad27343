// Package orchestrator wires the Service Registry, Context Store, NLP
// Engine, and the set of Tool Clients into one process: it owns the HTTP
// surface and the two background maintenance loops.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sparesparrow/mia-sub000/internal/backoff"
	"github.com/sparesparrow/mia-sub000/internal/config"
	"github.com/sparesparrow/mia-sub000/internal/contextstore"
	"github.com/sparesparrow/mia-sub000/internal/nlp"
	"github.com/sparesparrow/mia-sub000/internal/observability"
	"github.com/sparesparrow/mia-sub000/internal/registry"
	"github.com/sparesparrow/mia-sub000/internal/toolclient"
	"github.com/sparesparrow/mia-sub000/internal/transport"
)

// Server is the orchestrator process: it exclusively owns the Service
// Registry, Context Store, NLP Engine, and the set of Tool Clients, and
// exposes them through an HTTP surface plus two background maintenance
// loops.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *contextstore.Store
	engine   *nlp.Engine
	registry *registry.Registry
	router   *registry.Router

	clients map[string]*toolclient.Client

	tracer         *observability.Tracer
	tracerShutdown func(context.Context) error

	httpServer   *http.Server
	httpListener net.Listener

	now func() time.Time

	stopMaintenance context.CancelFunc
}

// New builds a Server from a loaded configuration. It opens the context
// store, constructs the NLP engine, and registers every configured
// downstream service. Message-kind Tool Clients are constructed here and
// connected later by Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	store, err := contextstore.Open(cfg.Workspace.DataDir, cfg.Session.ActiveWindow, cfg.Session.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open context store: %w", err)
	}

	tracer, tracerShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Observability.Environment,
		Endpoint:     cfg.Observability.Endpoint,
		SamplingRate: cfg.Observability.SamplingRate,
		Insecure:     cfg.Observability.Insecure,
	})

	reg := registry.New()
	s := &Server{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		engine:         nlp.New(),
		registry:       reg,
		router:         registry.NewRouter(reg, logger),
		clients:        make(map[string]*toolclient.Client),
		tracer:         tracer,
		tracerShutdown: tracerShutdown,
		now:            time.Now,
	}

	for _, svc := range cfg.Registry.Services {
		if err := s.registerService(svc); err != nil {
			return nil, fmt.Errorf("orchestrator: register service %q: %w", svc.Name, err)
		}
	}

	return s, nil
}

func (s *Server) registerService(svc config.ServiceConfig) error {
	switch strings.ToLower(strings.TrimSpace(svc.Kind)) {
	case "http":
		s.registry.RegisterHTTP(svc.Name, svc.Host, svc.Port, svc.Capabilities, svc.CallTimeout)
		return nil
	case "message":
		factory := newDialFactory(svc.Host, svc.Port)
		client := toolclient.New(factory, toolclient.Options{
			ClientName:           "orchestrator",
			ClientVersion:        Version,
			ServiceName:          svc.Name,
			CallTimeout:          svc.CallTimeout,
			ReconnectDelay:       svc.ReconnectDelay,
			MaxReconnectAttempts: svc.MaxReconnectAttempts,
			BackoffPolicy:        backoffPolicy(),
			Tracer:               s.tracer,
		}, s.logger.With("service", svc.Name))

		s.clients[svc.Name] = client
		s.registry.RegisterMessage(svc.Name, svc.Host, svc.Port, svc.Capabilities, client)
		return nil
	default:
		return fmt.Errorf("unknown service kind %q", svc.Kind)
	}
}

// newDialFactory builds a transport.Factory dialing a websocket at
// ws://host:port/ws on every call, so the Tool Client's reconnect loop
// always gets a fresh connection.
func newDialFactory(host string, port int) transport.Factory {
	url := fmt.Sprintf("ws://%s:%d/ws", host, port)
	return func() transport.Transport {
		return transport.NewWebSocket(url)
	}
}

func backoffPolicy() *backoff.BackoffPolicy {
	p := backoff.DefaultPolicy()
	return &p
}

// Start connects every message-kind Tool Client, then starts the HTTP
// server and the two maintenance loops. It returns once the HTTP listener
// is bound; serving and maintenance continue in background goroutines
// until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	for name, client := range s.clients {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := client.Connect(connectCtx)
		cancel()
		if err != nil {
			s.logger.Warn("initial connect failed, service stays disconnected", "service", name, "error", err)
		}
	}

	if err := s.startHTTPServer(); err != nil {
		return err
	}

	maintCtx, cancel := context.WithCancel(ctx)
	s.stopMaintenance = cancel
	s.startMaintenance(maintCtx)

	return nil
}

// Stop gracefully shuts down the HTTP server, stops the maintenance loops,
// and closes every Tool Client.
func (s *Server) Stop(ctx context.Context) error {
	if s.stopMaintenance != nil {
		s.stopMaintenance()
	}
	s.stopHTTPServer(ctx)

	for name, client := range s.clients {
		if err := client.Close(); err != nil {
			s.logger.Warn("tool client close error", "service", name, "error", err)
		}
	}

	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.logger.Warn("tracer shutdown error", "error", err)
		}
	}
	return nil
}

func (s *Server) startHTTPServer() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)
	mux := http.NewServeMux()
	s.mountRoutes(mux)

	var handler http.Handler = mux
	handler = corsMiddleware(handler)
	if secret := strings.TrimSpace(s.cfg.Auth.JWTSecret); secret != "" {
		handler = jwtAuthMiddleware(secret, handler)
	}
	handler = tracingMiddleware(s.tracer, handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("orchestrator: http listen: %w", err)
	}

	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

func (s *Server) stopHTTPServer(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
}

func (s *Server) mountRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/services", s.handleServices)
	mux.HandleFunc("/api/analytics", s.handleAnalytics)
	mux.HandleFunc("/api/command", s.handleCommand)
}

// Package api exposes a running simulator over HTTP (REST + a WebSocket
// execution stream) and gRPC (health checks only).
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"barsim/internal/broker"
	"barsim/internal/config"
	"barsim/internal/store"
)

// Option customises a Server.
type Option func(*Server)

// WithJournal enables the /api/v1/runs endpoints.
func WithJournal(j store.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	broker   broker.Broker
	hub      *Hub
	journal  store.Journal
	httpAddr string
	grpcAddr string
	log      *slog.Logger

	httpSrv *http.Server
	grpcSrv *grpc.Server
}

// NewServer creates a Server for brk. Executions reach WebSocket clients
// only if hub is subscribed to the broker by the caller.
func NewServer(cfg config.Server, brk broker.Broker, hub *Hub, opts ...Option) *Server {
	s := &Server{
		broker:   brk,
		hub:      hub,
		httpAddr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		log:      slog.Default().With("component", "api"),
	}
	if cfg.GRPCPort > 0 {
		s.grpcAddr = fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/positions", s.handleGetPositions)
	mux.HandleFunc("GET /api/v1/account", s.handleGetAccount)
	mux.HandleFunc("GET /api/v1/orders", s.handleGetOpenOrders)
	mux.HandleFunc("GET /api/v1/orders/completed", s.handleGetCompletedOrders)
	mux.HandleFunc("POST /api/v1/orders", s.handleSubmitOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{id}", s.handleCancelOrder)
	mux.HandleFunc("PUT /api/v1/orders/{id}", s.handleModifyOrder)
	mux.HandleFunc("GET /api/v1/executions", s.handleGetExecutions)
	mux.HandleFunc("GET /api/v1/contracts/{symbol}", s.handleContractDetails)
	if s.journal != nil {
		mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
		mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
		mux.HandleFunc("GET /api/v1/runs/{id}/executions", s.handleRunExecutions)
	}
	if s.hub != nil {
		mux.HandleFunc("GET /api/v1/stream", s.hub.HandleWS)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP listener, the gRPC listener when a gRPC
// port is configured, and the WebSocket hub. It blocks until ctx is
// cancelled or a listener fails, then shuts everything down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.httpSrv = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		s.log.Info("http listening", "addr", s.httpAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", s.grpcAddr, err)
		}
		var health *HealthService
		s.grpcSrv, health = NewGRPCServer()
		g.Go(func() error {
			s.log.Info("grpc listening", "addr", s.grpcAddr)
			if err := s.grpcSrv.Serve(lis); err != nil {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
		defer health.Shutdown()
	}

	if s.hub != nil {
		g.Go(func() error {
			s.hub.Run(gctx)
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.hub.Wait(waitCtx); err != nil {
				s.log.Warn("websocket clients still open at shutdown", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcSrv != nil {
		s.grpcSrv.GracefulStop()
	}
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

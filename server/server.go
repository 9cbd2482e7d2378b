// Package server exposes a vecserve.Service over HTTP/JSON.
//
// Routes:
//
//	GET  /healthz   liveness probe, plain "ok"
//	GET  /stats     active generation and query trackers
//	POST /load      install a snapshot
//	POST /query     k-nearest-neighbor search
//	GET  /metrics   Prometheus exposition (when a gatherer is configured)
//	GET  /          small HTML index
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecserve"
)

const (
	// DefaultMaxBodyBytes bounds request bodies. A query vector of 100k
	// float32 values fits comfortably.
	DefaultMaxBodyBytes = 8 << 20

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Server is the HTTP front end. Build it with New and start it with Run
// or Serve; Handler returns the routed handler for embedding and tests.
type Server struct {
	svc             *vecserve.Service
	logger          *vecserve.Logger
	gatherer        prometheus.Gatherer
	limiter         *rate.Limiter
	maxBodyBytes    int64
	shutdownTimeout time.Duration
	handler         http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *vecserve.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer enables GET /metrics backed by g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithQueryRateLimit caps POST /query at rps requests per second with the
// given burst. rps <= 0 disables the limit.
func WithQueryRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = max(1, int(rps))
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithShutdownTimeout bounds the graceful shutdown in Run and Serve.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New builds a Server over svc.
func New(svc *vecserve.Service, opts ...Option) *Server {
	s := &Server{
		svc:             svc,
		logger:          vecserve.NoopLogger(),
		maxBodyBytes:    DefaultMaxBodyBytes,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /load", s.handleLoad)
	mux.Handle("POST /query", rateLimit(s.limiter, http.HandlerFunc(s.handleQuery)))
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /{$}", s.handleRoot)

	var h http.Handler = mux
	h = recoverPanic(s.logger, h)
	h = accessLog(s.logger, h)
	h = requestID(h)
	return h
}

// Run listens on addr and serves until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

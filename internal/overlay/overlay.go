// Package overlay serves the live feed a web view renders on top of the
// screen: a minimal page at "/", a WebSocket event stream at "/ws", a small
// JSON API under "/api", plus the health and metrics endpoints.
//
// Every event published by the session controller is forwarded to all
// connected clients as a JSON object {"type": ..., "data": ...}. Clients send
// {"type":"click","keyword":...}, {"type":"clear"}, {"type":"start"} and
// {"type":"stop"}.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/livenote/internal/health"
	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/internal/session"
)

// Defaults.
const (
	DefaultAddr         = "127.0.0.1:8765"
	DefaultWriteTimeout = 5 * time.Second
	DefaultTopKeywords  = 15
	shutdownTimeout     = 5 * time.Second
)

// Backend is the session side the overlay drives. [*session.Controller]
// implements it.
type Backend interface {
	Subscribe(fn func(session.Event)) (unsubscribe func())
	Session() *session.Session
	Status() session.StatusData
	StartCapture() error
	StopCapture() error
	Clear()
	Click(keyword string) bool
}

var _ Backend = (*session.Controller)(nil)

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default: 127.0.0.1:8765.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithHealth serves h's /healthz and /readyz routes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics records metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithOriginPatterns allows WebSocket connections from the given host
// patterns in addition to same-origin ones.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithExtraRoute mounts h at pattern, e.g. the MCP endpoint.
func WithExtraRoute(pattern string, h http.Handler) Option {
	return func(s *Server) { s.extra = append(s.extra, route{pattern, h}) }
}

type route struct {
	pattern string
	handler http.Handler
}

// Server is the overlay HTTP server.
type Server struct {
	backend        Backend
	addr           string
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	origins        []string
	extra          []route
	writeTimeout   time.Duration

	hub     *hub
	unsub   func()
	handler http.Handler
}

// New creates a Server and subscribes it to b's events. Call Close to
// unsubscribe.
func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend:      b,
		addr:         DefaultAddr,
		metrics:      observe.DefaultMetrics(),
		writeTimeout: DefaultWriteTimeout,
		hub:          newHub(),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/keywords", s.handleKeywords)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/click", s.handleClick)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	for _, r := range s.extra {
		mux.Handle(r.pattern, r.handler)
	}
	s.handler = observe.Middleware(s.metrics)(mux)

	s.unsub = b.Subscribe(s.hub.broadcast)
	s.hub.broadcast(session.Event{Type: session.EventStatus, Data: b.Status()})
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int { return s.hub.count() }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("overlay listening", "addr", "http://"+s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("overlay: listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("overlay: shutdown: %w", err)
	}
	return <-errCh
}

// Close unsubscribes from the backend.
func (s *Server) Close() error {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	return nil
}

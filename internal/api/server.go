package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avans-mx/avanbot/internal/inventory"
	"github.com/avans-mx/avanbot/internal/router"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds how long a request body read may take.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds how long a response write may take.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Server serves the webhook and operational endpoints, delegating message
// processing to the router.
type Server struct {
	router      *router.Router
	store       inventory.Store
	verifyToken string
	addr        string
	startedAt   time.Time
	httpServer  *http.Server
}

// Opts holds server configuration applied via Option.
type Opts struct {
	Addr        string
	VerifyToken string
}

// Option configures the server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the token expected on webhook verification requests.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// NewServer creates the HTTP server around the router and the inventory
// store.
func NewServer(rt *router.Router, store inventory.Store, opts ...Option) (*Server, error) {
	if rt == nil {
		return nil, fmt.Errorf("router is required")
	}
	if store == nil {
		return nil, fmt.Errorf("inventory store is required")
	}

	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}

	s := &Server{
		router:      rt,
		store:       store,
		verifyToken: o.VerifyToken,
		addr:        o.Addr,
		startedAt:   time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         o.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s, nil
}

// Handler builds the route mux. Exposed so tests can drive the server with
// httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rootHandler)
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/webhook/", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/orders", s.ordersHandler)
	mux.HandleFunc("/lowstock", s.lowStockHandler)
	mux.HandleFunc("/interactions", s.interactionsHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

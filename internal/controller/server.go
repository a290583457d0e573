// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"postpilot/internal/controller/handlers"
	"postpilot/internal/controller/middleware"
)

// Config carries the server wiring options.
type Config struct {
	Addr           string
	InternalSecret string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(cfg Config, store handlers.StoreFactory, sched handlers.PostScheduler, sweeper handlers.Sweeper, ledger handlers.Pinger, metrics http.Handler) *Server {
	h := handlers.New(store, sched, sweeper, ledger)
	internalMW := middleware.RequireInternalAuth(cfg.InternalSecret)
	rateMW := middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Post management
	mux.Handle("POST /posts", rateMW(http.HandlerFunc(h.CreatePost)))
	mux.Handle("GET /posts/{id}", rateMW(http.HandlerFunc(h.GetPost)))
	mux.Handle("PUT /posts/{id}", rateMW(http.HandlerFunc(h.UpdatePost)))
	mux.Handle("DELETE /posts/{id}", rateMW(http.HandlerFunc(h.DeletePost)))

	// Internal endpoints
	// These mutate scheduling state and are gated by the shared ops secret;
	// they should also sit behind strict network rules.
	mux.Handle("POST /internal/sweep", internalMW(http.HandlerFunc(h.Sweep)))
	mux.Handle("GET /internal/queue/stats", internalMW(http.HandlerFunc(h.QueueStats)))

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      middleware.RequestID(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"reviewplane/internal/controller/handlers"
	"reviewplane/internal/controller/middleware"
)

// Options configures the controller server.
type Options struct {
	RateLimit float64
	RateBurst int
	// TrustForwardedFor keys the rate limit on X-Forwarded-For.
	TrustForwardedFor bool
	CORSOrigins       []string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(h, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// NewHandler builds the routed handler with its middleware chain:
// request id, then rate limit, then CORS.
func NewHandler(h *handlers.Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /schedule", h.Schedule)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{job_id}", h.GetJob)
	mux.HandleFunc("DELETE /jobs/{job_id}", h.CancelJob)
	mux.HandleFunc("GET /health", h.Health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var limitOpts []middleware.RateLimitOption
	if opts.TrustForwardedFor {
		limitOpts = append(limitOpts, middleware.WithForwardedFor())
	}
	limiter := middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, limitOpts...)
	var handler http.Handler = mux
	handler = middleware.CORS(opts.CORSOrigins)(handler)
	handler = limiter.Middleware()(handler)
	handler = middleware.RequestID(handler)
	return handler
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

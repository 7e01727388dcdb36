// Package server provides the HTTP surface of the problem workshop: server-rendered
// activity pages, form actions and a small JSON state API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/server/middleware"
	"github.com/jonathan/problem-workshop/internal/server/ratelimit"
)

// shutdownTimeout bounds graceful shutdown, including the final flush of pending saves.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	catalog     *activity.Catalog
	sessions    *sessions
	rateLimiter *ratelimit.Limiter
	pages       *renderer
	corsOrigins []string
	sweepEvery  time.Duration
	logger      *zap.Logger
}

// Config holds server configuration
type Config struct {
	Port        int
	CORSOrigins []string
	SaveDelay   time.Duration
	SessionTTL  time.Duration
	RateLimit   *ratelimit.Config
	Catalog     *activity.Catalog
}

// New creates a new server instance backed by store.
func New(cfg Config, store activity.Storage, logger *zap.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog := cfg.Catalog
	if catalog == nil {
		var err error
		catalog, err = activity.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("failed to load activity catalog: %w", err)
		}
	}

	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		catalog:     catalog,
		pages:       pages,
		corsOrigins: cfg.CORSOrigins,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:      logger,
	}

	newCtl := func(def *activity.Definition) *activity.Controller {
		return activity.NewController(def, store, activity.Options{
			SaveDelay: cfg.SaveDelay,
			Logger:    logger.With(zap.String("activity", def.ID)),
		})
	}
	s.sessions = newSessions(newCtl, cfg.SessionTTL, logger)
	s.sweepEvery = max(cfg.SessionTTL/4, time.Second)

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", s.handleIndex)

	// Activity pages and code entry
	mux.HandleFunc("GET /activities/{activity}", s.handleActivity)
	mux.HandleFunc("POST /activities/{activity}/code", s.handleSubmitCode)
	mux.HandleFunc("POST /activities/{activity}/skip", s.handleSkipCode)
	mux.HandleFunc("POST /activities/{activity}/retry", s.handleRetry)

	// Step form actions
	mux.HandleFunc("POST /activities/{activity}/step", s.handleStep)
	mux.HandleFunc("POST /activities/{activity}/reset", s.handleReset)
	mux.HandleFunc("POST /activities/{activity}/fields/{field}/markers", s.handleAddMarker)
	mux.HandleFunc("POST /activities/{activity}/fields/{field}/markers/{marker}/label", s.handleRelabelMarker)
	mux.HandleFunc("POST /activities/{activity}/fields/{field}/markers/{marker}/delete", s.handleRemoveMarker)
	mux.HandleFunc("POST /activities/{activity}/fields/{field}/items", s.handleAddItem)
	mux.HandleFunc("POST /activities/{activity}/fields/{field}/items/{index}/delete", s.handleRemoveItem)

	// JSON API
	mux.HandleFunc("GET /api/activities/{activity}/state", s.handleGetState)
	mux.HandleFunc("POST /api/activities/{activity}/fields/{field}", s.handleUpdateField)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(middleware.UserKey()(mux))))

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then shuts down gracefully: in-flight requests
// finish and every live session flushes its pending save.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.sessions.sweepLoop(gctx, s.sweepEvery)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	// Stop rate limiter cleanup goroutine
	s.rateLimiter.Stop()
	s.sessions.closeAll(ctx)

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Close flushes every live session and releases background resources without
// serving. It is used when the server was never started.
func (s *Server) Close(ctx context.Context) {
	s.rateLimiter.Stop()
	s.sessions.closeAll(ctx)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.corsOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract client identifier (IP address)
		clientID := s.extractClientID(r)

		// Check rate limit
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		if !allowed {
			// Set rate limit headers
			s.setRateLimitHeaders(w, info)
			// Return 429 Too Many Requests
			s.rateLimitResponse(w, r, info)
			return
		}

		// Set rate limit headers for successful requests
		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	// Get IP from RemoteAddr (format: "IP:port")
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If parsing fails, use the whole RemoteAddr
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.logger.Warn("rate limit exceeded",
		zap.String("path", r.URL.Path),
		zap.String("tier", info.Tier),
		zap.Int("limit", info.Limit),
		zap.Time("reset", info.ResetTime),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

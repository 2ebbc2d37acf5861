// Package api exposes the HTTP interface for the gateway service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/blob"
	"github.com/torqlist/leadgate/internal/config"
	"github.com/torqlist/leadgate/internal/metrics"
	"github.com/torqlist/leadgate/internal/pipeline"
	"github.com/torqlist/leadgate/internal/proxy"
	"github.com/torqlist/leadgate/internal/store"
)

// Server wires HTTP handlers to the capture pipeline and the downstream
// proxies.
type Server struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	chat     *proxy.ChatProxy
	analyzer *proxy.AnalysisProxy
	archive  blob.Provider
	prober   store.Prober
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. archive and
// prober may be nil; archiving is skipped and readiness reports
// fallback-only mode.
func NewServer(
	pl *pipeline.Pipeline,
	chat *proxy.ChatProxy,
	analyzer *proxy.AnalysisProxy,
	archive blob.Provider,
	prober store.Prober,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if archive == nil {
		archive = blob.NoOpProvider{}
	}
	s := &Server{
		pipeline: pl,
		chat:     chat,
		analyzer: analyzer,
		archive:  archive,
		prober:   prober,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The signup routes are short request/response cycles and get a
		// server-side deadline. The proxy routes manage their own
		// lifetimes: chat streams indefinitely and analyze carries a
		// five-minute budget, so http.TimeoutHandler would cut both off
		// (and its writer cannot flush).
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(time.Duration(cfg.Server.RequestTimeout) * time.Second))
			r.Post("/signup", s.captureSignup)
			r.Get("/signup", s.lookupSignup)
		})
		r.Post("/chat", s.chatCompletion)
		r.Post("/analyze", s.analyzeListing)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports the primary store's probed availability. Fallback-only
// deployments are always ready: the local store has no dependency to
// probe.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ready",
			"storage": "fallback-only",
		})
		return
	}
	availability := s.prober.Probe(r.Context())
	status := http.StatusOK
	if availability == store.Unreachable {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{
		"status":  "ready",
		"storage": availability.String(),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

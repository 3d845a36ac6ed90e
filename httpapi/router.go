// Package httpapi exposes the connector operations over HTTP with chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-social-sync/core"
)

// Service is the slice of core.ConnectorService served over HTTP.
type Service interface {
	StoreCredentials(ctx context.Context, req core.StoreCredentialsRequest) (string, error)
	GetActiveCredentials(ctx context.Context, tenantID string) (core.CredentialSet, error)
	BeginAuth(ctx context.Context, tenantID string) (core.BeginAuthResponse, error)
	CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error)
	Disconnect(ctx context.Context, tenantID string) error
	ListContent(ctx context.Context, req core.ListContentRequest) (core.ContentPage, error)
	TriggerSync(ctx context.Context, tenantID string) (core.TriggerSyncResult, error)
}

type Option func(*Server)

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMiddleware appends middleware after the built in stack.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithMetricsHandler mounts a scrape endpoint at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

type Server struct {
	service    Service
	logger     glog.Logger
	middleware []func(http.Handler) http.Handler
	metrics    http.Handler
	router     chi.Router
}

func NewServer(service Service, opts ...Option) *Server {
	s := &Server{
		service: service,
		logger:  glog.Nop(),
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	for _, mw := range s.middleware {
		s.router.Use(mw)
	}
}

func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/credentials", s.storeCredentials)
		r.Get("/credentials/active", s.activeCredentials)
		r.Get("/oauth/begin", s.beginAuth)
		r.Get("/oauth/callback", s.completeAuth)
		r.Delete("/connection", s.disconnect)
		r.Get("/content", s.listContent)
		r.Post("/sync", s.triggerSync)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		args := []any{
			"method", r.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		logger := s.logger.WithContext(r.Context())
		if status >= http.StatusInternalServerError {
			logger.Error("http request failed", args...)
			return
		}
		logger.Info("http request", args...)
	})
}

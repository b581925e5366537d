// Package api exposes the HTTP surface: the GitHub webhook intake that feeds
// the event bus and the findings query endpoints backed by the finding store.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"

	"secintel/internal/domain/events"
	"secintel/internal/domain/scanning"
	"secintel/pkg/common/logger"
	"secintel/pkg/common/otel"
)

// Config holds the settings the HTTP server needs. WebhookSecret is the
// shared secret for webhook signature verification; when empty, signatures
// are not checked and a warning is logged on every delivery.
type Config struct {
	Host          string
	Port          string
	WebhookSecret string

	// AllowedOrigins configures CORS for browser-based consumers of the
	// findings API. Empty means no CORS headers are emitted.
	AllowedOrigins []string
}

// Server routes webhook deliveries onto the event bus and serves finding
// queries. It does no scanning itself.
type Server struct {
	cfg      Config
	logger   *logger.Logger
	router   *chi.Mux
	tracer   trace.Tracer
	eventBus events.EventBus
	findings scanning.FindingRepository
	metrics  APIMetrics

	readyCheck func(ctx context.Context) error
}

// Option configures optional server behavior.
type Option func(*Server)

// WithReadinessCheck sets the dependency probe run by the readiness
// endpoint. Without one the server always reports ready.
func WithReadinessCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.readyCheck = check }
}

func NewServer(
	cfg Config,
	log *logger.Logger,
	tracer trace.Tracer,
	eventBus events.EventBus,
	findings scanning.FindingRepository,
	metrics APIMetrics,
	opts ...Option,
) (*Server, error) {
	if eventBus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if findings == nil {
		return nil, fmt.Errorf("finding repository is required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	s := &Server{
		cfg:      cfg,
		logger:   log,
		router:   r,
		tracer:   tracer,
		eventBus: eventBus,
		findings: findings,
		metrics:  metrics,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s, nil
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Post("/webhooks/github", s.handleGitHubWebhook)
		r.Get("/webhooks/github/test", s.handleWebhookTest)

		r.Route("/findings", func(r chi.Router) {
			r.Get("/", s.handleListFindings)
			r.Get("/stats/summary", s.handleFindingStats)
			r.Get("/{findingID}", s.handleGetFinding)
			r.Patch("/{findingID}/status", s.handleUpdateFindingStatus)
		})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.readyCheck != nil {
		if err := s.readyCheck(r.Context()); err != nil {
			s.logger.Error(r.Context(), "readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ready": false,
				"error": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server",
		"addr", server.Addr,
		"service", "webhook-api",
	)

	return server.ListenAndServe()
}

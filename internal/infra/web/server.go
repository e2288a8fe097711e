package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/usecase"
)

// batchService is the slice of the batch use case the HTTP layer needs.
type batchService interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (*usecase.SubmitResult, error)
	Validate(text string) ([]string, []usecase.InvalidLink)
	Cancel(ctx context.Context, batchID string) error
	RetryFailed(ctx context.Context, batchID string) (string, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Batch, error)
	Links(ctx context.Context, batchID string) ([]*model.Link, error)
}

type progressService interface {
	Snapshot(ctx context.Context, batchID string) (*usecase.Snapshot, error)
}

// retentionService triggers one retention sweep on demand.
type retentionService interface {
	Sweep(ctx context.Context) (int, error)
}

type Server struct {
	batches   batchService
	progress  progressService
	retention retentionService // nil disables the manual sweep endpoint
	auth      *AuthManager
	log       *zerolog.Logger

	srv *http.Server
}

func NewServer(
	batches batchService,
	progress progressService,
	retention retentionService,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		batches:   batches,
		progress:  progress,
		retention: retention,
		auth:      auth,
		log:       logger,
	}
}

// Router builds the full route tree. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/admin/login", s.loginHandler)
		r.Post("/admin/logout", s.logoutHandler)
		r.With(s.auth.Require).Post("/admin/retention/sweep", s.retentionHandler)

		r.Route("/batch", func(r chi.Router) {
			r.Post("/", s.submitHandler)
			r.Post("/validate", s.validateHandler)

			r.With(s.auth.Require).Get("/list", s.listHandler)

			r.Route("/{batchID}", func(r chi.Router) {
				r.Get("/status", s.statusHandler)
				r.Get("/links", s.linksHandler)
				r.Post("/cancel", s.cancelHandler)
				r.Post("/retry-failed", s.retryHandler)
			})
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

// Start binds and serves until the listener fails or Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/analyst/internal/analysis"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/pipeline"
	"github.com/sells-group/analyst/internal/store"
)

// Service is the job service the handlers call. *analysis.Service
// satisfies it.
type Service interface {
	Create(ctx context.Context, req analysis.CreateRequest) (*model.Job, error)
	Trigger(ctx context.Context, id string) (pipeline.Outcome, error)
	Fetch(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context) ([]model.IndexEntry, error)
	Delete(ctx context.Context, id string) error
	Deepen(ctx context.Context, id string, req pipeline.DeepenRequest) error
	Upload(ctx context.Context, name, contentType string, data []byte) (model.FileRef, error)
}

// Options configures the router.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	// JobTTLs set the client cache lifetime of a fetched job by status.
	JobTTLs store.TTLs
	// Keys are reported, masked, by the debug endpoint.
	AnthropicKey string
	BraveKey     string
	Env          string
}

// Handler serves the API.
type Handler struct {
	svc  Service
	opts Options
}

// NewRouter builds the chi router for svc.
func NewRouter(svc Service, opts Options) http.Handler {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	h := &Handler{svc: svc, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Post("/analyze", h.create)
		r.Get("/analyses", h.list)
		r.Post("/upload", h.upload)
		r.Get("/debug-env", h.debugEnv)

		r.Route("/analysis/{id}", func(r chi.Router) {
			r.Get("/", h.fetch)
			r.Delete("/", h.delete)
			r.Post("/process", h.process)
			r.Post("/deepen", h.deepen)
		})
	})
	return r
}

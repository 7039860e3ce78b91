package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/logging"
	"virtual-fitting-room/internal/session"
)

type Options struct {
	Catalog  *catalog.Catalog
	Sessions *session.Store
	// BaseContext parents background generations. Defaults to
	// context.Background.
	BaseContext    context.Context
	MaxUploadBytes int64
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = imagecodec.DefaultMaxUploadBytes
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &Handler{
		catalog:        opts.Catalog,
		sessions:       opts.Sessions,
		baseCtx:        baseCtx,
		maxUploadBytes: maxUpload,
		logger:         logger,
	}
	httpMetrics := newHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger))
	r.Use(httpMetrics.instrument)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{Data: map[string]string{"status": "ok"}})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.CloseSession)
			r.Post("/photo", h.UploadPhoto)
			r.Delete("/photo", h.RemovePhoto)
			r.Post("/generate", h.Generate)
			r.Post("/reset", h.ResetResult)
		})
	})

	return r
}

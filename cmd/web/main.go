package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/config"
	"virtual-fitting-room/internal/gemini"
	"virtual-fitting-room/internal/httpclient"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/logging"
	"virtual-fitting-room/internal/metrics"
	"virtual-fitting-room/internal/session"
	"virtual-fitting-room/internal/tryon"
	"virtual-fitting-room/internal/web"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New("fitting-web", cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Metrics:    httpclient.NewClientMetrics(reg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := gemini.NewBackend(ctx, cfg.GeminiBackend, gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("gemini init failed", "err", err)
		os.Exit(1)
	}

	products := catalog.Default()
	if cfg.CatalogPath != "" {
		products, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			logger.Error("catalog load failed", "path", cfg.CatalogPath, "err", err)
			os.Exit(1)
		}
	}

	m := metrics.New(reg)
	store := session.NewStore(session.Options{
		Controller: tryon.Options{
			Generator: gen,
			Images:    imagecodec.NewFetcher(httpClient),
			Limits: tryon.Limits{
				MaxUploadBytes: cfg.MaxUploadBytes,
				MaxWidth:       cfg.ResizeMaxWidth,
				MaxHeight:      cfg.ResizeMaxHeight,
				Quality:        cfg.JPEGQuality,
			},
			Timeout: cfg.GenerationTimeout,
			Logger:  logger,
			Metrics: m,
		},
		Metrics: m,
	})

	router := web.NewRouter(web.Options{
		Catalog:        products,
		Sessions:       store,
		BaseContext:    ctx,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Registerer:     reg,
		Gatherer:       reg,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation runs in the background, but uploads can be slow.
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr, "products", products.Len(), "backend", cfg.GeminiBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		store.RunSweeper(gctx, cfg.SessionIdleTTL, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("web stopped", "err", err)
	}
	store.CloseAll()
}

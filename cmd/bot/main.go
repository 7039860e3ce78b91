package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/config"
	"virtual-fitting-room/internal/gemini"
	"virtual-fitting-room/internal/handlers"
	"virtual-fitting-room/internal/httpclient"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/logging"
	"virtual-fitting-room/internal/mediagroup"
	"virtual-fitting-room/internal/metrics"
	"virtual-fitting-room/internal/session"
	"virtual-fitting-room/internal/telegram"
	"virtual-fitting-room/internal/tryon"
)

// updateTimeout bounds one update: downloads and Bot API calls. Generations
// run detached and are bounded by GENERATION_TIMEOUT_SECONDS.
const updateTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := logging.New("fitting-bot", cfg.LogLevel)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Metrics:    httpclient.NewClientMetrics(prometheus.DefaultRegisterer),
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

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

	// The store reports back to the handler, which needs the store.
	var handler *handlers.Handler
	m := metrics.New(prometheus.DefaultRegisterer)
	sessions := session.NewStore(session.Options{
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
		OnChange: func(id string, st tryon.State) {
			handler.Notify(id, st)
		},
		Metrics: m,
	})

	handler = handlers.New(handlers.Options{
		Messenger:      tg,
		Catalog:        products,
		Sessions:       sessions,
		BaseContext:    ctx,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, updateTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)
	defer func() {
		if n := aggregator.Stop(); n > 0 {
			logger.Info("dropped pending albums", "count", n)
		}
	}()

	logger.Info("bot started", "username", tg.Username(), "products", products.Len(), "backend", cfg.GeminiBackend)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sessions.RunSweeper(gctx, cfg.SessionIdleTTL, logger)
		return nil
	})

	g.Go(func() error {
		defer stop()
		for {
			select {
			case <-gctx.Done():
				logger.Info("shutting down")
				return nil
			case update, ok := <-updates:
				if !ok {
					logger.Info("updates channel closed")
					return nil
				}

				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return nil
				}

				go func(update telegram.Update) {
					defer func() { <-sem }()

					reqCtx, cancel := context.WithTimeout(gctx, updateTimeout)
					defer cancel()

					if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("handle update failed", "err", err)
					}
				}(update)
			}
		}
	})

	_ = g.Wait()
	sessions.CloseAll()
}

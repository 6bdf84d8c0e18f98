package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NasaVasa/hubalerts/internal/config"
	"github.com/NasaVasa/hubalerts/internal/delivery/httpapi"
	"github.com/NasaVasa/hubalerts/internal/delivery/telegram"
	"github.com/NasaVasa/hubalerts/internal/delivery/ws"
	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/NasaVasa/hubalerts/internal/infra/channel"
	"github.com/NasaVasa/hubalerts/internal/infra/db"
	"github.com/NasaVasa/hubalerts/internal/infra/log"
	"github.com/NasaVasa/hubalerts/internal/infra/memory"
	"github.com/NasaVasa/hubalerts/internal/usecase"
	"go.uber.org/zap"
)

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	server    *http.Server
	hub       *ws.Hub
	alerting  *usecase.AlertingManager
	processor *usecase.QueueProcessor
	scheduler *usecase.AlertScheduler
	bot       *telegram.Bot
	cleanupFn func() error
}

type storage struct {
	prefs     domain.PreferenceRepository
	watchlist domain.WatchlistRepository
	queue     domain.QueueRepository
	logs      domain.DeliveryLogRepository
	listings  domain.ListingSource
	close     func() error
}

func openStorage(cfg config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		return &storage{
			prefs:     memory.NewPreferenceStore(),
			watchlist: memory.NewWatchlistStore(),
			queue:     memory.NewQueueStore(),
			logs:      memory.NewDeliveryLogStore(),
			listings:  memory.NewListingStore(),
		}, nil
	case "postgres", "":
		dbConn, err := db.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &storage{
			prefs:     db.NewPreferenceRepository(dbConn),
			watchlist: db.NewWatchlistRepository(dbConn),
			queue:     db.NewQueueRepository(dbConn),
			logs:      db.NewDeliveryLogRepository(dbConn),
			listings:  db.NewListingRepository(dbConn, logger.Named("listings")),
			close: func() error {
				sqlDB, err := dbConn.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

var openStore = openStorage

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load quiet hours location: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		if store.close == nil {
			return
		}
		if err := store.close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}

	senders := channel.NewSenders(channel.Config{
		ResendAPIKey:        cfg.ResendAPIKey,
		FromEmail:           cfg.FromEmail,
		FrontendURL:         cfg.FrontendURL,
		TelegramBotToken:    cfg.TelegramBotToken,
		TelegramAPIEndpoint: cfg.TelegramAPIEndpoint,
		Timeout:             cfg.ChannelHTTPTimeout,
	}, logger.Named("channel"))

	alerting := usecase.NewAlertingManager(store.prefs, store.watchlist, store.queue, store.logs, senders, logger.Named("alerting"), usecase.AlertingOptions{
		BatchSize:   cfg.QueueBatchSize,
		Pacing:      cfg.DeliveryPacing,
		Location:    location,
		FrontendURL: cfg.FrontendURL,
	})
	processor := usecase.NewQueueProcessor(alerting, logger.Named("queue"), usecase.QueueProcessorOptions{
		Interval:        cfg.QueueInterval,
		CleanupInterval: cfg.CleanupInterval,
		Retention:       cfg.QueueRetention,
	})

	hub := ws.NewHub(cfg.CORSAllowedOrigins, logger.Named("ws"))
	scheduler, err := usecase.NewAlertScheduler(alerting, store.listings, hub, logger.Named("scheduler"), usecase.SchedulerOptions{
		Interval:      cfg.SchedulerInterval,
		MinScore:      cfg.HotDealMinScore,
		Window:        cfg.HotDealWindow,
		Limit:         cfg.HotDealLimit,
		SeenCacheSize: cfg.SeenCacheSize,
		Tables:        cfg.ListingTables,
	})
	if err != nil {
		closeStore()
		return nil, err
	}

	prefs := usecase.NewPreferenceUsecase(store.prefs, store.watchlist, cfg.ListingCategories())
	handler := httpapi.NewHandler(prefs, alerting, scheduler, processor, logger.Named("http"))
	router := httpapi.NewRouter(handler, logger.Named("http"), httpapi.RouterOptions{
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.HTTPRequestTimeout,
		Live:           hub,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var bot *telegram.Bot
	if cfg.TelegramBotPolling && cfg.TelegramBotToken != "" {
		api, err := telegram.NewAPI(cfg.TelegramBotToken, cfg.TelegramAPIEndpoint)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("connect telegram bot: %w", err)
		}
		handlers := telegram.NewHandlers(cfg.FrontendURL+"/settings/alerts", logger.Named("telegram"))
		bot = telegram.NewBot(api, handlers, cfg.TelegramPollTimeout)
	}

	if cfg.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY not set, internal endpoints are unauthenticated")
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		server:    server,
		hub:       hub,
		alerting:  alerting,
		processor: processor,
		scheduler: scheduler,
		bot:       bot,
		cleanupFn: store.close,
	}, nil
}

// Run starts the background loops and serves HTTP until ctx is cancelled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("hubalerts service starting", zap.String("addr", a.cfg.HTTPAddr), zap.String("storage", a.cfg.StorageDriver))

	a.processor.Start(ctx)
	a.scheduler.Start(ctx)

	if a.bot != nil {
		go func() {
			if err := a.bot.Start(ctx); err != nil {
				a.logger.Warn("telegram bot stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()
	a.logger.Info("hubalerts service started")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func (a *App) Shutdown() {
	a.logger.Info("hubalerts service shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown failed", zap.Error(err))
	}

	a.scheduler.Stop()
	a.processor.Stop()
	a.alerting.Wait()
	a.hub.Close()

	if a.cleanupFn != nil {
		if err := a.cleanupFn(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

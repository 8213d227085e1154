package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amaumene/autopost/internal/clients"
	"github.com/amaumene/autopost/internal/config"
	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/handler"
	"github.com/amaumene/autopost/internal/parser"
	"github.com/amaumene/autopost/internal/scheduler"
	"github.com/amaumene/autopost/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout   = 30 * time.Second
	sourceStopTimeout = 10 * time.Second
)

type App struct {
	cfg          *config.Config
	server       *fiber.App
	store        *bolthold.Store
	repo         domain.ReleaseRepository
	queue        domain.SettleQueue
	source       domain.UploadSource
	scheduler    *scheduler.Scheduler
	ingestSvc    *service.IngestService
	orchestrator *Orchestrator
	sourceDone   chan struct{}
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	ConfigureLogging(cfg.LogLevel)

	stores, err := OpenStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	log.WithFields(log.Fields{
		"component": "telegram",
		"bot":       bot.Self.UserName,
	}).Info("authorized telegram bot")

	app := &App{
		cfg:        cfg,
		store:      stores.Bolt,
		repo:       stores.Releases,
		queue:      stores.Queue,
		sourceDone: make(chan struct{}),
	}

	if err := app.wireServices(bot); err != nil {
		stores.Close()
		return nil, fmt.Errorf("wiring services: %w", err)
	}

	return app, nil
}

// ConfigureLogging sets the logrus level, defaulting to info.
func ConfigureLogging(level string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func (a *App) wireServices(bot *tgbotapi.BotAPI) error {
	limiter := rate.NewLimiter(rate.Limit(a.cfg.PublishRate), a.cfg.PublishBurst)
	publisher, err := clients.NewTelegramPublisher(bot, a.cfg.DestChannel, limiter)
	if err != nil {
		return err
	}
	source, err := clients.NewTelegramSource(bot, a.cfg.SourceChannel)
	if err != nil {
		return err
	}
	posters := clients.NewTMDBClient(a.cfg.TMDBBaseURL, a.cfg.TMDBAPIKey, a.cfg.TMDBLanguage, a.cfg.HTTPTimeout)

	reconcileSvc := service.NewReconcileService(a.cfg, a.repo, posters, publisher, a.queue)
	a.scheduler = scheduler.New(reconcileSvc.Settle,
		scheduler.WithWait(a.cfg.GroupWait),
		scheduler.WithMaxAge(a.cfg.GroupMaxWait),
	)
	a.ingestSvc = service.NewIngestService(parser.New(parser.WithLanguages(a.cfg.Languages)), a.scheduler)
	a.source = source

	a.setupHTTPServer(reconcileSvc)
	a.orchestrator = NewOrchestrator(a.cfg.RequeueInterval, reconcileSvc)
	return nil
}

func (a *App) setupHTTPServer(reconcileSvc *service.ReconcileService) {
	httpHandler := handler.NewHTTPHandler(a.repo, a.queue, a.scheduler, reconcileSvc, a.ingestSvc)

	a.server = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
	})
	httpHandler.RegisterRoutes(a.server)
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.orchestrator.Start(); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runSource(gctx)
	})
	g.Go(a.startServer)

	shutdownErr := a.waitForShutdown(gctx, cancel)
	if err := g.Wait(); err != nil {
		return err
	}
	return shutdownErr
}

func (a *App) runSource(ctx context.Context) error {
	defer close(a.sourceDone)
	if err := a.source.Run(ctx, a.ingestSvc.Handle); err != nil {
		return fmt.Errorf("running upload source: %w", err)
	}
	return nil
}

func (a *App) startServer() error {
	log.WithFields(log.Fields{
		"component": "server",
		"address":   a.cfg.ServerPort,
	}).Info("http server listening")

	if err := a.server.Listen(a.cfg.ServerPort); err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (a *App) waitForShutdown(ctx context.Context, cancel context.CancelFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.WithField("reason", "context_cancelled").Info("initiating graceful shutdown")
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("received shutdown signal")
	}

	cancel()
	return a.shutdown()
}

// shutdown stops intake first so every accepted upload is settled before
// the store closes.
func (a *App) shutdown() error {
	log.Info("graceful shutdown started")

	select {
	case <-a.sourceDone:
	case <-time.After(sourceStopTimeout):
		log.WithField("component", "telegram").Warn("upload source did not stop in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		log.WithFields(log.Fields{
			"component": "scheduler",
			"error":     err,
			"alert":     true,
		}).Error("pending batches not settled before shutdown")
	}

	if err := a.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithFields(log.Fields{
			"component": "server",
			"error":     err,
		}).Error("http server shutdown failed")
	}

	a.orchestrator.Stop(shutdownCtx)

	if err := a.closeStores(); err != nil {
		log.WithFields(log.Fields{
			"component": "database",
			"error":     err,
		}).Error("database connection close failed")
		return err
	}

	log.Info("graceful shutdown completed")
	return nil
}

func (a *App) closeStores() error {
	return (&Stores{Bolt: a.store, Releases: a.repo, Queue: a.queue}).Close()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oggyb/courier/internal/attachment"
	"github.com/oggyb/courier/internal/cache/redis"
	"github.com/oggyb/courier/internal/config"
	"github.com/oggyb/courier/internal/db/gormdb"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/handler"
	"github.com/oggyb/courier/internal/ingest"
	"github.com/oggyb/courier/internal/logger"
	"github.com/oggyb/courier/internal/middleware"
	"github.com/oggyb/courier/internal/provider"
	queueredis "github.com/oggyb/courier/internal/queue/redis"
	"github.com/oggyb/courier/internal/quota"
	"github.com/oggyb/courier/internal/render"
	mesgRepo "github.com/oggyb/courier/internal/repository/gorm/message"
	routes "github.com/oggyb/courier/internal/router"
	"github.com/oggyb/courier/internal/scheduler"
	"github.com/oggyb/courier/internal/server"
	"github.com/oggyb/courier/internal/service"
	"github.com/oggyb/courier/internal/template"
	"github.com/oggyb/courier/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// Base context for the whole application lifetime.
	rootCtx := context.Background()

	// Load configuration from environment/.env.
	cfg := config.New()
	log := logger.New(cfg.App.LogLevel, cfg.App.LogPretty).
		With().Str("app", cfg.App.Name).Logger()

	// Init cache.
	cache := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := cache.Ping(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer cache.Close()

	// Init DB.
	db, err := gormdb.New(cfg.PostgresDSN(), gormdb.Pool{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect db")
	}
	defer db.Close()

	// Repository and queues.
	msgRepository := mesgRepo.NewRepository(db)
	jobs := queueredis.NewJobQueue(cache.Raw(), "jobs", cfg.Worker.LeaseTimeout)
	fanOut := queueredis.NewFanOut(cache.Raw())
	ledger := quota.NewRedisLedger(cache.Raw(), quota.DefaultPolicies(
		cfg.Quota.EmailTestAllowance,
		cfg.Quota.SMSTestAllowance,
		cfg.Quota.Window,
	))

	// Templates and attachments.
	var store template.Store
	if cfg.Templates.Dir != "" {
		store = template.NewFileStore(cfg.Templates.Dir)
	} else {
		store = template.NewHTTPStore(cfg.Templates.BaseURL, cfg.Templates.FetchTimeout)
	}
	resolver := template.NewResolver(store, cache, cfg.Templates.MaxRetries, logger.Component(log, "templates"))
	attachments := attachment.NewClient(cfg.Attachments.PDFRendererURL, cfg.Attachments.StoreURL, cfg.Attachments.Timeout)

	// Providers.
	providers, err := newProviders(rootCtx, cfg, cache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init providers")
	}

	// Services.
	pipeline := service.NewPipeline(service.Deps{
		Groups:      msgRepository,
		Messages:    msgRepository,
		Queries:     msgRepository,
		Jobs:        jobs,
		FanOut:      fanOut,
		Ledger:      ledger,
		Cache:       cache,
		Templates:   resolver,
		Renderer:    render.New(cfg.API.ClickURL),
		Providers:   providers,
		PDF:         attachments,
		Attachments: attachments,
	}, log)
	reconciler := service.NewReconciler(msgRepository, cache, log)
	query := service.NewQuery(msgRepository, msgRepository)
	maintenance := service.NewMaintenance(jobs, msgRepository, cfg.Scheduler.Retention, log)

	// Only a configured Mandrill provider keeps subaccounts.
	var subaccounts service.SubaccountProvider
	if p, err := providers.Get(message.MethodEmailMandrill); err == nil {
		subaccounts, _ = p.(service.SubaccountProvider)
	}
	accounts := service.NewAccounts(msgRepository, subaccounts, log)

	// Workers
	pool := worker.NewPool(jobs, service.Handlers(pipeline, reconciler), worker.Options{
		Concurrency: cfg.Worker.Concurrency,
		JobTimeout:  cfg.Worker.JobTimeout,
		MaxAttempts: cfg.Worker.MaxAttempts,
		RetryBase:   cfg.Worker.RetryBase,
		PollTimeout: cfg.Worker.PollTimeout,
	}, log)

	// Cron
	cron := scheduler.NewSchedulerService(
		maintenance,
		cfg.Scheduler.Interval,
		cfg.Scheduler.BatchTimeout,
		log,
	)

	// HTTP dependencies & server wiring.

	// Handlers
	homeHandler := handler.NewHomeHandler(map[string]handler.Pinger{
		"db":    db,
		"redis": cache,
	})
	sendHandler := handler.NewSendHandler(ingest.NewGate(cfg.Auth.SigningKey), pipeline, log)
	webhookHandler := handler.NewWebhookHandler(service.NewEventQueue(jobs), handler.WebhookConfig{
		MandrillKey: cfg.Mandrill.WebhookKey,
		MandrillURL: cfg.Mandrill.WebhookURL,
	}, log)
	clickHandler := handler.NewClickHandler(reconciler, log)
	queryHandler := handler.NewQueryHandler(query, log)
	schedulerHandler := handler.NewSchedulerHandler(cron)
	accountHandler := handler.NewAccountHandler(accounts, log)
	numberHandler := handler.NewNumberHandler()

	// Init route dependencies
	deps := routes.AppDeps{
		Home:      homeHandler,
		Send:      sendHandler,
		Webhook:   webhookHandler,
		Click:     clickHandler,
		Query:     queryHandler,
		Scheduler: schedulerHandler,
		Accounts:  accountHandler,
		Numbers:   numberHandler,
		Auth:      middleware.ServiceKey(cfg.Auth.ServiceKey),
	}

	// Init Server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	srv := server.New(addr, deps, log)

	// Create a context that is cancelled on SIGINT/SIGTERM (Ctrl+C, docker stop etc.).
	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the HTTP server in a separate goroutine so we can listen for signals.
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Workers run until ctx is cancelled.
	workersDone := make(chan error, 1)
	go func() {
		workersDone <- pool.Run(ctx)
	}()

	// Start the scheduler after everything is wired up.
	if err := cron.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}
	log.Info().Msg("scheduler started")

	// Block until we receive a shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, starting graceful shutdown")

	// Give components some time to shut down cleanly.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first so no new jobs are queued.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server graceful shutdown failed")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	// Stop the scheduler (waits for in-flight batch to finish or timeout).
	if err := cron.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler could not be stopped")
	}

	// In-flight jobs finish or are retried from their lease.
	select {
	case err := <-workersDone:
		if err != nil {
			log.Error().Err(err).Msg("workers stopped with error")
		}
	case <-shutdownCtx.Done():
		log.Warn().Msg("workers did not stop in time")
	}

	log.Info().Msg("shutdown complete")
}

// newProviders registers a provider per send method. Live providers are
// only registered when they are configured.
func newProviders(ctx context.Context, cfg *config.Config, c *redis.Client, log zerolog.Logger) (*provider.Registry, error) {
	opts := provider.ClientOptions{
		RatePerSecond: cfg.Provider.RatePerSecond,
		Burst:         cfg.Provider.Burst,
		MaxRetries:    cfg.Provider.MaxRetries,
	}

	sink := provider.NewTestSink(cfg.Provider.TestOutputDir, logger.Component(log, "test_sink"))
	reg := provider.NewRegistry().
		Register(message.MethodEmailTest, sink).
		Register(message.MethodSMSTest, sink)

	if cfg.Mandrill.Key != "" {
		mopts := opts
		mopts.Timeout = cfg.Mandrill.Timeout
		mandrill := provider.NewMandrill(cfg.Mandrill.URL, cfg.Mandrill.Key, mopts, logger.Component(log, "mandrill"))
		if err := mandrill.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("mandrill ping failed")
		}
		reg.Register(message.MethodEmailMandrill, mandrill)
	}

	if cfg.SES.Region != "" {
		ses, err := provider.NewSES(ctx, cfg.SES.Region, cfg.SES.ConfigurationSet, cfg.Provider.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("ses: %w", err)
		}
		reg.Register(message.MethodEmailSES, ses)
	}

	if cfg.MessageBird.Key != "" {
		bopts := opts
		bopts.Timeout = cfg.MessageBird.Timeout
		reg.Register(message.MethodSMSMessagebird, provider.NewMessageBird(cfg.MessageBird.URL, c, provider.MessageBirdOptions{
			Key:          cfg.MessageBird.Key,
			Originator:   cfg.MessageBird.Originator,
			USOriginator: cfg.MessageBird.USOriginator,
			DefaultPrice: cfg.MessageBird.DefaultSMSPrice,
		}, bopts, logger.Component(log, "messagebird")))
	}

	return reg, nil
}

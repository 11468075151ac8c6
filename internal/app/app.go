package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/config"
	"github.com/karimadel/giu-portal-monitor/internal/database"
	"github.com/karimadel/giu-portal-monitor/internal/delivery/httpd"
	"github.com/karimadel/giu-portal-monitor/internal/detector"
	"github.com/karimadel/giu-portal-monitor/internal/notifier"
	"github.com/karimadel/giu-portal-monitor/internal/portal"
	"github.com/karimadel/giu-portal-monitor/internal/repository"
	"github.com/karimadel/giu-portal-monitor/internal/service"
)

type App struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.Config
	monitor service.MonitorService
	store   repository.SnapshotStore
	amqp    *notifier.AMQPNotifier
	stop    chan struct{}
}

func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := newStore(cfg, log)
	if err != nil {
		return nil, err
	}

	client := portal.NewClient(cfg.Portal, log)
	assembler := portal.NewAssembler(client, cfg.Monitor, log)
	det := detector.New(log)

	var notifiers []notifier.Notifier
	if cfg.Email.Enabled {
		notifiers = append(notifiers, notifier.NewEmailNotifier(cfg.Email, log))
	}

	var amqp *notifier.AMQPNotifier
	if cfg.RabbitMQ.Enabled {
		amqp, err = notifier.NewAMQPNotifier(cfg.RabbitMQ, log)
		if err != nil {
			// Monitoring keeps working without the AMQP surface.
			log.Error().Err(err).Msg("Failed to create AMQP notifier")
			amqp = nil
		} else {
			notifiers = append(notifiers, amqp)
		}
	}

	monitor := service.NewMonitorService(assembler, det, store, notifiers, log)

	handler := httpd.NewHandler(monitor, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:  server,
		logger:  log,
		config:  cfg,
		monitor: monitor,
		store:   store,
		amqp:    amqp,
		stop:    make(chan struct{}),
	}, nil
}

func newStore(cfg *config.Config, log zerolog.Logger) (repository.SnapshotStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.NewPostgres(cfg.Store.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		log.Info().Msg("Database connection established")
		return repository.NewPostgresStore(db, log), nil
	case "file":
		return repository.NewFileStore(cfg.Store.Path, log), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Run starts the periodic monitoring loop and blocks serving the status API.
func (a *App) Run() error {
	go a.monitorLoop()

	a.logger.Info().Msgf("Starting status server on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

// RunOnce performs a single monitoring check, for one-shot invocations.
func (a *App) RunOnce(ctx context.Context) error {
	return a.monitor.RunOnce(ctx)
}

func (a *App) monitorLoop() {
	if a.config.Monitor.RunOnStart {
		a.runScheduled()
	}

	ticker := time.NewTicker(a.config.Monitor.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.runScheduled()
		case <-a.stop:
			return
		}
	}
}

func (a *App) runScheduled() {
	// Run failures are logged inside the service; overlap is the only error
	// worth surfacing here.
	if err := a.monitor.RunOnce(context.Background()); err == service.ErrRunInProgress {
		a.logger.Warn().Msg("Skipping scheduled run, previous run still active")
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down portal monitor...")

	close(a.stop)

	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close AMQP notifier")
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close snapshot store")
		}
	}

	return a.server.Shutdown(ctx)
}

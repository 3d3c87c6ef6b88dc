// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "ql-service/docs"
	"ql-service/internal/config"
	"ql-service/internal/database"
	"ql-service/internal/driver"
	"ql-service/internal/handler"
	"ql-service/internal/repository"
	"ql-service/internal/routes"
	"ql-service/internal/service"
	"ql-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// Services
	printService     *service.PrintService
	discoveryService *service.DiscoveryService

	// Repositories
	jobRepo repository.JobRepository

	// Events
	eventBus  *handler.EventBus
	wsHandler *handler.WebSocketHandler

	// Driver registry
	driverRegistry *driver.Registry

	cancel context.CancelFunc
}

// @title QL Label Printer Service API
// @version 1.0
// @description Prints raster labels on Brother QL printers and reports their status.
// @BasePath /api/v1
func main() {
	flags := pflag.NewFlagSet("ql-server", pflag.ExitOnError)
	configFile := flags.StringP("config", "c", "", "configuration file")
	flags.String("address", "", "default printer address")
	flags.String("port", "", "HTTP listen port")
	_ = flags.Parse(os.Args[1:])

	v := viper.GetViper()
	_ = v.BindPFlag("printer.address", flags.Lookup("address"))
	_ = v.BindPFlag("server.port", flags.Lookup("port"))

	app, err := NewApplication(v, *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(v *viper.Viper, configFile string) (*Application, error) {
	cfg, err := config.LoadFrom(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "ql-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()
	app.initializeDriverRegistry()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeDatabase connects to PostgreSQL and runs migrations when the job
// history database is enabled
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, job history kept in memory")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	if app.config.Database.MigrateOnStart {
		migrator := database.NewMigrator(db, app.logger, &app.config.Database)
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	if app.database != nil {
		app.jobRepo = repository.NewJobRepository(app.database, app.logger)
	} else {
		app.jobRepo = repository.NewMemoryJobRepository()
	}

	app.logger.Info("Repositories initialized successfully")
}

// initializeDriverRegistry sets up the printer session registry and routes
// driver events onto the event bus
func (app *Application) initializeDriverRegistry() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.driverRegistry = driver.NewRegistry(&app.config.Printer, app.logger)
	app.driverRegistry.SetEventHandler(handler.NewDeviceEventHandler(app.eventBus, app.logger))

	app.logger.Info("Driver registry initialized successfully",
		zap.String("default_printer", app.config.Printer.Address),
	)
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.printService = service.NewPrintService(
		app.jobRepo,
		app.driverRegistry,
		app.eventBus,
		app.config,
		app.logger,
	)

	app.discoveryService = service.NewDiscoveryService(
		app.driverRegistry,
		app.config,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.wsHandler = handler.NewWebSocketHandler(
		app.printService,
		app.eventBus,
		app.config.Security.AllowedOrigins,
		app.logger,
	)

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.printService,
		app.discoveryService,
		app.wsHandler,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices(ctx context.Context) {
	go app.eventBus.Start(ctx)
	go app.wsHandler.Run(ctx)

	if app.config.Database.Retention > 0 {
		go app.startCleanupService(ctx)
	}

	app.logger.Info("Background services started")
}

// startCleanupService deletes jobs older than the configured retention
func (app *Application) startCleanupService(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("retention", app.config.Database.Retention),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cleanupCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		deleted, err := app.jobRepo.DeleteOlderThan(cleanupCtx, time.Now().Add(-app.config.Database.Retention))
		cancel()
		if err != nil {
			app.logger.Error("Failed to cleanup old jobs", zap.Error(err))
		} else if deleted > 0 {
			app.logger.Info("Cleaned up old jobs", zap.Int64("deleted", deleted))
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "ql-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	// In-flight print jobs finish before the server stops.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server until a shutdown signal arrives
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices(ctx)
	app.waitForShutdown()

	return nil
}

// Package internal wires the statlens application together.
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"statlens/internal/config"
	"statlens/internal/database"
	statshttp "statlens/internal/http"
	"statlens/internal/logging"
	"statlens/internal/reports"
	"statlens/internal/store/clickhouse"
)

// Application holds the wired components of the stats server.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Events    *clickhouse.Store
	Engine    *reports.Engine
	Fiber     *fiber.App
}

// NewApp creates an application instance with the default config.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig wires config, registry database, event store, report
// engine, and HTTP routes into a runnable application.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize registry database: %w", err)
	}

	events, err := clickhouse.Connect(context.Background(), clickhouse.Options{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event store: %w", err)
	}

	engine := reports.NewEngine(events, dbManager.GetConnection(), logger)
	stats := statshttp.NewStatsHandler(engine, dbManager.GetConnection(), cfg, logger)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Events:    events,
		Engine:    engine,
		Fiber:     NewRouter(cfg, stats),
	}, nil
}

// StartAsync begins serving HTTP in a background goroutine.
func (a *Application) StartAsync() {
	go func() {
		addr := ":" + a.Config.AppPort
		a.Logger.Info("starting stats server", slog.String("addr", addr))
		if err := a.Fiber.Listen(addr); err != nil {
			a.Logger.Error("server stopped", slog.Any("error", err))
		}
	}()
}

// Shutdown stops the HTTP server and closes backing connections.
func (a *Application) Shutdown(ctx context.Context) error {
	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := a.Events.Close(); err != nil {
		a.Logger.Warn("failed to close event store connection", slog.Any("error", err))
	}
	return nil
}

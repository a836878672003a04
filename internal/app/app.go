package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/schoolfood/backoffice/internal/data/db"
	"github.com/schoolfood/backoffice/internal/docgen"
	apphttp "github.com/schoolfood/backoffice/internal/http"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/envutil"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Catalog  *docgen.Catalog
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	postgres     *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()
	sqlDB, err := theDB.DB()
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("sql handle: %w", err)
	}

	cat, err := docgen.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	clientset, err := wireClients(ctx, log)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, cat, clientset, reposet, metrics)
	if err != nil {
		clientset.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, sqlDB, serviceset)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Catalog:      cat,
		Clients:      clientset,
		Repos:        reposet,
		Services:     serviceset,
		Server:       apphttp.NewServer(routerConfig(log, cfg, handlerset, metrics)),
		Metrics:      metrics,
		postgres:     pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the task API until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
	return a.Server.Run(ctx, a.Cfg.HTTPAddr, a.Cfg.ShutdownTimeout)
}

// RunWorker syncs templates, then executes queued jobs until ctx is done and
// every in-flight job reached a terminal state.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil || a.Services.JobWorker == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := syncTemplates(ctx, a.Log, a.Catalog.TemplatesDir); err != nil {
		return err
	}
	a.Services.JobWorker.Start(ctx)
	<-ctx.Done()
	a.Log.Info("Waiting for running jobs to settle")
	a.Services.JobWorker.Wait()
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.postgres != nil {
		_ = a.postgres.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

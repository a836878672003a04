package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/schoolfood/backoffice/internal/dedup"
	"github.com/schoolfood/backoffice/internal/docgen"
	"github.com/schoolfood/backoffice/internal/jobs/pipeline/annex_build"
	"github.com/schoolfood/backoffice/internal/jobs/pipeline/contract_build"
	"github.com/schoolfood/backoffice/internal/jobs/pipeline/delivery_build"
	"github.com/schoolfood/backoffice/internal/jobs/pipeline/record_register_build"
	"github.com/schoolfood/backoffice/internal/jobs/pipeline/register_build"
	"github.com/schoolfood/backoffice/internal/jobs/pipeline/week_summary_build"
	"github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/jobs/worker"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/pipeline"
	"github.com/schoolfood/backoffice/internal/platform/logger"
	"github.com/schoolfood/backoffice/internal/services"
)

type Services struct {
	Jobs        services.JobService
	RecordState services.RecordStateService
	Pipeline    *pipeline.Orchestrator
	Registry    *runtime.Registry
	JobWorker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, cat *docgen.Catalog, clients Clients, repos Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	folders := docgen.NewFolderResolver(cfg.DriveRootID, clients.Drive, repos.DirectoryTree, log)
	factory := docgen.NewFactory(cat, folders, log)
	cache := dedup.NewCache(clients.Redis, clients.Drive, cfg.DedupHashKey, log)
	orchestrator := pipeline.New(factory, clients.Drive, cache, log,
		pipeline.WithWidth(cfg.PipelineWidth),
		pipeline.WithTempRoot(cfg.TempDir),
		pipeline.WithMetrics(metrics),
	)

	jobs := services.NewJobService(db, log, repos.JobRun)
	states := services.NewRecordStateService(db, log, repos.Records)

	registry, err := wireHandlersRegistry(log, orchestrator, states, repos)
	if err != nil {
		return Services{}, err
	}
	return Services{
		Jobs:        jobs,
		RecordState: states,
		Pipeline:    orchestrator,
		Registry:    registry,
		JobWorker:   worker.NewWorker(db, log, repos.JobRun, registry, cfg.Worker),
	}, nil
}

func wireHandlersRegistry(log *logger.Logger, runner *pipeline.Orchestrator, states services.RecordStateService, repos Repos) (*runtime.Registry, error) {
	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		delivery_build.New(log, runner, states),
		contract_build.New(log, runner, repos.Contracts),
		annex_build.New(log, runner, repos.Contracts),
		week_summary_build.New(log, runner, repos.Records, repos.Contracts),
		register_build.New(log, runner, repos.Contracts),
		record_register_build.New(log, runner, repos.Records, repos.Contracts),
	} {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register %s: %w", h.Type(), err)
		}
	}
	return registry, nil
}

package app

import (
	"database/sql"

	apphttp "github.com/schoolfood/backoffice/internal/http"
	httpH "github.com/schoolfood/backoffice/internal/http/handlers"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Task   *httpH.TaskHandler
	Record *httpH.RecordHandler
}

func wireHandlers(log *logger.Logger, sqlDB *sql.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(sqlDB),
		Task:   httpH.NewTaskHandler(services.Jobs),
		Record: httpH.NewRecordHandler(services.RecordState),
	}
}

func routerConfig(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		TaskHandler:   handlers.Task,
		RecordHandler: handlers.Record,
		HealthHandler: handlers.Health,
		Log:           log,
		Metrics:       metrics,
		CORSOrigins:   cfg.CORSOrigins,
		ServiceName:   cfg.ServiceName,
	}
}

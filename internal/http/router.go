package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/schoolfood/backoffice/internal/http/handlers"
	httpMW "github.com/schoolfood/backoffice/internal/http/middleware"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type RouterConfig struct {
	TaskHandler   *httpH.TaskHandler
	RecordHandler *httpH.RecordHandler
	HealthHandler *httpH.HealthHandler

	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Tasks
		if cfg.TaskHandler != nil {
			api.POST("/tasks/:kind", cfg.TaskHandler.Submit)
			api.GET("/tasks/:id/progress", cfg.TaskHandler.Progress)
		}

		// Records
		if cfg.RecordHandler != nil {
			api.POST("/records/delivered", cfg.RecordHandler.MarkDelivered)
		}
	}

	return r
}

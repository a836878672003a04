package app

import (
	"strings"
	"time"

	"github.com/schoolfood/backoffice/internal/jobs/worker"
	"github.com/schoolfood/backoffice/internal/pipeline"
	"github.com/schoolfood/backoffice/internal/platform/envutil"
)

type Config struct {
	ServiceName     string
	Environment     string
	Version         string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	CatalogPath   string
	DriveRootID   string
	DedupHashKey  string
	PipelineWidth int
	TempDir       string

	Worker worker.Config
}

func LoadConfig() Config {
	return Config{
		ServiceName:     envutil.String("SERVICE_NAME", "backoffice"),
		Environment:     envutil.String("APP_ENV", "development"),
		Version:         envutil.String("APP_VERSION", "dev"),
		HTTPAddr:        envutil.String("HTTP_ADDR", ":8080"),
		ShutdownTimeout: envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		CatalogPath:     envutil.String("DOCS_CATALOG_PATH", ""),
		DriveRootID:     envutil.String("GOOGLE_DRIVE_ROOT_ID", "root"),
		DedupHashKey:    envutil.String("DEDUP_HASH_KEY", ""),
		PipelineWidth:   envutil.Int("PIPELINE_WIDTH", pipeline.DefaultWidth),
		TempDir:         envutil.String("PIPELINE_TEMP_DIR", ""),
		Worker:          worker.ConfigFromEnv(),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

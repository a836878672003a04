package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/schoolfood/backoffice/internal/platform/gcp"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

var newTemplateSync = gcp.NewTemplateSync

type TemplateBootstrapErrorCode string

const (
	TemplateBootstrapErrorInvalidMode         TemplateBootstrapErrorCode = "invalid_mode"
	TemplateBootstrapErrorMissingEmulatorHost TemplateBootstrapErrorCode = "missing_emulator_host"
	TemplateBootstrapErrorInvalidEmulatorHost TemplateBootstrapErrorCode = "invalid_emulator_host"
	TemplateBootstrapErrorSyncFailed          TemplateBootstrapErrorCode = "sync_failed"
)

type TemplateBootstrapError struct {
	Code  TemplateBootstrapErrorCode
	Dir   string
	Cause error
}

func (e *TemplateBootstrapError) Error() string {
	if e == nil {
		return "template bootstrap failed"
	}
	return fmt.Sprintf("template bootstrap failed (code=%s dir=%q): %v", e.Code, e.Dir, e.Cause)
}

func (e *TemplateBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// syncTemplates refreshes dir from the template bucket when one is
// configured. Without a bucket the local directory is used as is.
func syncTemplates(ctx context.Context, log *logger.Logger, dir string) error {
	sync, err := newTemplateSync(ctx, log)
	if err != nil {
		classified := classifyTemplateBootstrapError(dir, err)
		log.Error("Template store bootstrap failed", "dir", dir, "error_code", classified.Code, "error", err)
		return classified
	}
	if sync == nil {
		log.Info("No template bucket configured, using local templates", "dir", dir)
		return nil
	}
	defer sync.Close()

	n, err := sync.Sync(ctx, dir)
	if err != nil {
		log.Error("Template sync failed", "dir", dir, "written", n, "error", err)
		return &TemplateBootstrapError{Code: TemplateBootstrapErrorSyncFailed, Dir: dir, Cause: err}
	}
	return nil
}

func classifyTemplateBootstrapError(dir string, err error) *TemplateBootstrapError {
	out := &TemplateBootstrapError{Code: TemplateBootstrapErrorSyncFailed, Dir: dir, Cause: err}
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			out.Code = TemplateBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			out.Code = TemplateBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			out.Code = TemplateBootstrapErrorInvalidEmulatorHost
		}
	}
	return out
}

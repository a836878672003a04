package delivery_build

import (
	"context"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/pipeline"
	"github.com/schoolfood/backoffice/internal/platform/logger"
	"github.com/schoolfood/backoffice/internal/services"
)

type Runner interface {
	Run(ctx context.Context, specs []docgen.Spec, progress pipeline.Progress) (pipeline.Result, error)
}

type Pipeline struct {
	log    *logger.Logger
	runner Runner
	states services.RecordStateService
}

func New(baseLog *logger.Logger, runner Runner, states services.RecordStateService) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", types.TypeDelivery),
		runner: runner,
		states: states,
	}
}

func (p *Pipeline) Type() string { return types.TypeDelivery }

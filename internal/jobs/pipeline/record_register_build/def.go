package record_register_build

import (
	"context"

	recordrepo "github.com/schoolfood/backoffice/internal/data/repos/records"
	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/pipeline"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type Runner interface {
	Run(ctx context.Context, specs []docgen.Spec, progress pipeline.Progress) (pipeline.Result, error)
}

type Pipeline struct {
	log       *logger.Logger
	runner    Runner
	records   recordrepo.RecordRepo
	contracts recordrepo.ContractRepo
}

func New(baseLog *logger.Logger, runner Runner, records recordrepo.RecordRepo, contracts recordrepo.ContractRepo) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", types.TypeRecordRegister),
		runner:    runner,
		records:   records,
		contracts: contracts,
	}
}

func (p *Pipeline) Type() string { return types.TypeRecordRegister }

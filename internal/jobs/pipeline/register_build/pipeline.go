package register_build

import (
	"fmt"
	"time"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) (any, error) {
	var in types.RegisterPayload
	if err := jc.DecodePayload(&in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	program, err := p.contracts.GetProgram(dbc, in.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if program == nil {
		return nil, fmt.Errorf("program %d not found", in.ProgramID)
	}
	contracts, err := p.contracts.ListByProgram(dbc, program.ID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	spec := docgen.Register{Program: program, Contracts: contracts, Date: time.Now()}
	res, err := p.runner.Run(jc.Ctx, []docgen.Spec{spec}, jc)
	if err != nil {
		return nil, err
	}
	return res.All(), nil
}

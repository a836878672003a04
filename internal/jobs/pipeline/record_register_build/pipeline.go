package record_register_build

import (
	"fmt"
	"time"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/domain/records"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

// Run renders the register of records already printed for the program.
func (p *Pipeline) Run(jc *jobrt.Context) (any, error) {
	var in types.RecordRegisterPayload
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
	recs, err := p.records.ListByProgram(dbc, program.ID, records.StateGenerated, records.StateDelivered)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	apps, err := p.contracts.ListApplications(dbc, program.ID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	jc.Log.Debug("Record register collected", "records", len(recs), "applications", len(apps))

	spec := docgen.RecordRegister{Program: program, Records: recs, Applications: apps, Date: time.Now()}
	res, err := p.runner.Run(jc.Ctx, []docgen.Spec{spec}, jc)
	if err != nil {
		return nil, err
	}
	return res.All(), nil
}

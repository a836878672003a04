package contract_build

import (
	"fmt"
	"time"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

// Run ensures a contract exists for every selected school and generates the
// contract documents. Schools whose contract cannot be stored are skipped.
func (p *Pipeline) Run(jc *jobrt.Context) (any, error) {
	var in types.ContractsPayload
	if err := jc.DecodePayload(&in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	date, err := docgen.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	weeks, err := p.contracts.ListWeeks(dbc, in.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}

	year := time.Now().Year()
	specs := make([]docgen.Spec, 0, len(in.Schools))
	for _, schoolID := range in.Schools {
		c, err := p.contracts.EnsureForSchool(dbc, schoolID, in.ProgramID, year)
		if err != nil {
			jc.Log.Error("Contract not saved", "school_id", schoolID, "error", err)
			continue
		}
		specs = append(specs, docgen.Contract{Contract: c, Date: date, Weeks: weeks})
	}

	res, err := p.runner.Run(jc.Ctx, specs, jc)
	if err != nil {
		return nil, err
	}
	return res.All(), nil
}

package week_summary_build

import (
	"fmt"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) (any, error) {
	var in types.WeekSummaryPayload
	if err := jc.DecodePayload(&in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	week, err := p.contracts.GetWeek(dbc, in.WeekID)
	if err != nil {
		return nil, fmt.Errorf("load week: %w", err)
	}
	if week == nil {
		return nil, fmt.Errorf("week %d not found", in.WeekID)
	}
	recs, err := p.records.GetByWeek(dbc, week.ID)
	if err != nil {
		return nil, fmt.Errorf("load week records: %w", err)
	}

	res, err := p.runner.Run(jc.Ctx, []docgen.Spec{docgen.WeekSummary{Week: week, Records: recs}}, jc)
	if err != nil {
		return nil, err
	}
	return res.All(), nil
}

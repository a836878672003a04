package annex_build

import (
	"fmt"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) (any, error) {
	var in types.AnnexPayload
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
	annex, err := p.contracts.GetAnnex(dbctx.Context{Ctx: jc.Ctx}, in.AnnexID)
	if err != nil {
		return nil, fmt.Errorf("load annex: %w", err)
	}
	if annex == nil {
		return nil, fmt.Errorf("annex %d not found", in.AnnexID)
	}

	res, err := p.runner.Run(jc.Ctx, []docgen.Spec{docgen.Annex{Annex: annex, Date: date}}, jc)
	if err != nil {
		return nil, err
	}
	return res.All(), nil
}

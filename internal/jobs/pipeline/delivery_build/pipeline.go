package delivery_build

import (
	"fmt"

	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/services"
)

func (p *Pipeline) payload(jc *jobrt.Context) (types.DeliveryPayload, error) {
	var in types.DeliveryPayload
	if err := jc.DecodePayload(&in); err != nil {
		return in, err
	}
	return in, in.Validate()
}

// Run marks the records as in progress, numbers them when a driver is
// assigned and generates the delivery note plus one note per record.
func (p *Pipeline) Run(jc *jobrt.Context) (any, error) {
	in, err := p.payload(jc)
	if err != nil {
		return nil, err
	}
	date, err := docgen.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}

	begun, err := p.states.BeginDelivery(jc.Ctx, in.Records, date, in.Driver)
	if err != nil {
		return nil, fmt.Errorf("begin delivery: %w", err)
	}
	jc.SetNotifications(services.WarningMessages(begun.Warnings))

	specs := []docgen.Spec{docgen.Delivery{
		Records:  begun.Records,
		Date:     date,
		Driver:   in.Driver,
		Comments: in.Comments,
	}}
	if in.Driver != "" {
		for _, rec := range begun.Records {
			specs = append(specs, docgen.RecordNote{Record: rec})
		}
	}
	jc.Log.Info("Generating delivery documents", "records", len(begun.Records), "documents", len(specs))

	res, err := p.runner.Run(jc.Ctx, specs, jc)
	if err != nil {
		return nil, err
	}
	return res.All(), nil
}

func (p *Pipeline) OnSuccess(jc *jobrt.Context, _ any) error {
	in, err := p.payload(jc)
	if err != nil {
		return err
	}
	_, err = p.states.AdvanceDelivery(jc.Ctx, in.Records, in.Driver != "")
	return err
}

func (p *Pipeline) OnFailure(jc *jobrt.Context, cause error) error {
	in, err := p.payload(jc)
	if err != nil {
		return err
	}
	jc.Log.Warn("Rolling back delivery records", "records", len(in.Records), "cause", cause)
	return p.states.RollbackDelivery(jc.Ctx, in.Records)
}

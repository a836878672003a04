package week_summary_build

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/datatypes"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	recordrepo "github.com/schoolfood/backoffice/internal/data/repos/records"
	"github.com/schoolfood/backoffice/internal/data/repos/testutil"
	"github.com/schoolfood/backoffice/internal/docgen"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/domain/records"
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/pipeline"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

type captureRunner struct{ specs []docgen.Spec }

func (r *captureRunner) Run(_ context.Context, specs []docgen.Spec, _ pipeline.Progress) (pipeline.Result, error) {
	r.specs = specs
	return pipeline.Result{}, nil
}

func TestWeekSummaryCollectsWeekRecords(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cat := testutil.SeedCatalog(t, db)
	week := &records.Week{WeekNo: 1, StartDate: cat.Program.StartDate, EndDate: cat.Program.StartDate.AddDate(0, 0, 4), ProgramID: cat.Program.ID}
	if err := db.Create(week).Error; err != nil {
		t.Fatalf("create week: %v", err)
	}
	in := testutil.SeedRecord(t, db, cat, cat.Milk, cat.Program.StartDate, nil, records.StateDelivered)
	out := testutil.SeedRecord(t, db, cat, cat.Apple, cat.Program.StartDate.AddDate(0, 0, 14), nil, "")
	if err := db.Model(&records.Record{}).Where("id = ?", in.ID).Update("week_id", week.ID).Error; err != nil {
		t.Fatalf("assign week: %v", err)
	}

	runner := &captureRunner{}
	p := New(log, runner, recordrepo.NewRecordRepo(db, log), recordrepo.NewContractRepo(db, log))
	jobs := jobrepo.NewJobRunRepo(db, log)
	raw, _ := json.Marshal(types.WeekSummaryPayload{WeekID: week.ID})
	job := &types.JobRun{JobType: types.TypeWeekSummary, Payload: datatypes.JSON(raw)}
	if err := jobs.Create(dbctx.Context{Ctx: context.Background()}, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := p.Run(jobrt.NewContext(context.Background(), db, job, jobs, log)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.specs) != 1 {
		t.Fatalf("expected one summary spec, got %d", len(runner.specs))
	}
	spec, ok := runner.specs[0].(docgen.WeekSummary)
	if !ok {
		t.Fatalf("unexpected spec %T", runner.specs[0])
	}
	if spec.Week.ID != week.ID || len(spec.Records) != 1 || spec.Records[0].ID != in.ID {
		t.Fatalf("unexpected summary spec: week=%d records=%d (excluded %d)", spec.Week.ID, len(spec.Records), out.ID)
	}
}

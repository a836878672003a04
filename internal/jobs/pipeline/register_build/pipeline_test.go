package register_build

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
	jobrt "github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/pipeline"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

type captureRunner struct{ specs []docgen.Spec }

func (r *captureRunner) Run(_ context.Context, specs []docgen.Spec, _ pipeline.Progress) (pipeline.Result, error) {
	r.specs = specs
	return pipeline.Result{}, nil
}

func newJob(t *testing.T, jobs jobrepo.JobRunRepo, programID uint) *types.JobRun {
	t.Helper()
	raw, _ := json.Marshal(types.RegisterPayload{ProgramID: programID})
	job := &types.JobRun{JobType: types.TypeRegister, Payload: datatypes.JSON(raw)}
	if err := jobs.Create(dbctx.Context{Ctx: context.Background()}, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestRegisterListsProgramContracts(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cat := testutil.SeedCatalog(t, db)

	runner := &captureRunner{}
	p := New(log, runner, recordrepo.NewContractRepo(db, log))
	jobs := jobrepo.NewJobRunRepo(db, log)
	job := newJob(t, jobs, cat.Program.ID)

	if _, err := p.Run(jobrt.NewContext(context.Background(), db, job, jobs, log)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.specs) != 1 {
		t.Fatalf("expected one register spec, got %d", len(runner.specs))
	}
	spec, ok := runner.specs[0].(docgen.Register)
	if !ok {
		t.Fatalf("unexpected spec %T", runner.specs[0])
	}
	if spec.Program.ID != cat.Program.ID || len(spec.Contracts) != 1 || spec.Contracts[0].School.Nick != "sp1" {
		t.Fatalf("unexpected register spec %+v", spec)
	}
}

func TestRegisterMissingProgramFails(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	runner := &captureRunner{}
	p := New(log, runner, recordrepo.NewContractRepo(db, log))
	jobs := jobrepo.NewJobRunRepo(db, log)
	job := newJob(t, jobs, 404)

	if _, err := p.Run(jobrt.NewContext(context.Background(), db, job, jobs, log)); err == nil {
		t.Fatalf("expected error for missing program")
	}
	if runner.specs != nil {
		t.Fatalf("runner must not be called")
	}
}

package runtime

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	"github.com/schoolfood/backoffice/internal/data/repos/testutil"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

type nopHandler struct{ typ string }

func (h nopHandler) Type() string { return h.typ }
func (h nopHandler) Run(*Context) (any, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nopHandler{typ: "delivery"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(nopHandler{typ: "delivery"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := r.Register(nopHandler{}); err == nil {
		t.Fatalf("expected empty type to fail")
	}
	if _, ok := r.Get("delivery"); !ok {
		t.Fatalf("expected handler to be found")
	}
	if _, ok := r.Get("contracts"); ok {
		t.Fatalf("unexpected handler for contracts")
	}
}

func TestContextLifecycle(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewJobRunRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}

	job := &types.JobRun{JobType: "delivery", Payload: datatypes.JSON(`{"date":"2024-03-05"}`)}
	if err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	claimed, err := repo.ClaimNextQueued(dbc)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextQueued: %v %v", claimed, err)
	}

	jc := NewContext(context.Background(), db, claimed, repo, log)
	var payload struct {
		Date string `json:"date"`
	}
	if err := jc.DecodePayload(&payload); err != nil || payload.Date != "2024-03-05" {
		t.Fatalf("DecodePayload: %+v %v", payload, err)
	}

	jc.AddExpected(4)
	jc.AddFinished(3)
	jc.AddFinished(3)
	if jc.Job.DocumentsFinished != 4 {
		t.Fatalf("in-memory finished counter not clamped: %d", jc.Job.DocumentsFinished)
	}
	jc.SetNotifications([]string{"a", "b"})
	if got := jc.Notifications(); len(got) != 2 {
		t.Fatalf("unexpected notifications %v", got)
	}

	applied, err := jc.Fail(errors.New("drive down"))
	if err != nil || !applied {
		t.Fatalf("Fail: %v %v", applied, err)
	}
	applied, err = jc.Succeed([]string{"late"})
	if err != nil || applied {
		t.Fatalf("Succeed after Fail must be a no-op: %v %v", applied, err)
	}

	stored, err := repo.GetByID(dbc, job.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.StatusFailed || stored.Error != "drive down" {
		t.Fatalf("unexpected stored job %q %q", stored.Status, stored.Error)
	}
	if stored.DocumentsExpected != 4 || stored.DocumentsFinished != 4 {
		t.Fatalf("unexpected counters %d/%d", stored.DocumentsFinished, stored.DocumentsExpected)
	}
	reloaded := NewContext(context.Background(), db, stored, repo, log)
	if got := reloaded.Notifications(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("notifications not persisted: %v", got)
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	jc := NewContext(context.Background(), nil, &types.JobRun{JobType: "annex"}, nil, testutil.Logger(t))
	var v map[string]any
	if err := jc.DecodePayload(&v); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

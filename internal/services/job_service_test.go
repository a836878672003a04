package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	"github.com/schoolfood/backoffice/internal/data/repos/testutil"
	"github.com/schoolfood/backoffice/internal/domain/documents"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

func TestJobServiceLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := jobrepo.NewJobRunRepo(db, testutil.Logger(t))
	svc := NewJobService(db, testutil.Logger(t), repo)
	dbc := dbctx.Context{Ctx: context.Background()}

	job, err := svc.Enqueue(dbc, "delivery", map[string]any{"records": []uint{1, 2}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	p, err := svc.GetProgress(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.Status != types.StatusQueued || p.Percent != 0 {
		t.Fatalf("expected queued at 0%%, got %s %d", p.Status, p.Percent)
	}

	if _, err := repo.ClaimNextQueued(dbc); err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if err := repo.AddExpected(dbc, job.ID, 8); err != nil {
		t.Fatalf("AddExpected: %v", err)
	}
	if err := repo.AddFinished(dbc, job.ID, 3); err != nil {
		t.Fatalf("AddFinished: %v", err)
	}
	if p, _ = svc.GetProgress(dbc, job.ID); p.Percent != 38 {
		t.Fatalf("expected 38%%, got %d", p.Percent)
	}
	if _, err := svc.GetResult(dbc, job.ID); err == nil {
		t.Fatalf("running job must not have a result")
	}

	artifacts := []documents.Artifact{
		documents.New("generated/WZ/a.docx", documents.MimeDocx, "folder").WithRemote("doc-1", "https://drive/doc-1"),
	}
	raw, _ := json.Marshal(artifacts)
	if err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status":        types.StatusFinished,
		"result":        datatypes.JSON(raw),
		"notifications": datatypes.JSON(`["Record numbers changed for school: sp1"]`),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	p, err = svc.GetProgress(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.Percent != 100 || len(p.Documents) != 1 || p.Documents[0].RemoteID != "doc-1" {
		t.Fatalf("unexpected finished progress %+v", p)
	}
	if len(p.Notifications) != 1 {
		t.Fatalf("expected notification, got %v", p.Notifications)
	}
	docs, err := svc.GetResult(dbc, job.ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("GetResult: %v %v", docs, err)
	}
}

func TestJobServiceFailedAndMissing(t *testing.T) {
	db := testutil.DB(t)
	repo := jobrepo.NewJobRunRepo(db, testutil.Logger(t))
	svc := NewJobService(db, testutil.Logger(t), repo)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := svc.GetProgress(dbc, uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := svc.Enqueue(dbc, " ", nil); err == nil {
		t.Fatalf("expected error for empty job type")
	}

	job, err := svc.Enqueue(dbc, "contracts", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{"status": types.StatusFailed, "error": "drive down"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	_, err = svc.GetResult(dbc, job.ID)
	var failed *JobFailedError
	if !errors.As(err, &failed) || failed.Cause != "drive down" {
		t.Fatalf("expected JobFailedError, got %v", err)
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		job  types.JobRun
		want int
	}{
		{types.JobRun{Status: types.StatusRunning}, 0},
		{types.JobRun{Status: types.StatusFinished}, 100},
		{types.JobRun{Status: types.StatusRunning, DocumentsExpected: 4, DocumentsFinished: 1}, 25},
		{types.JobRun{Status: types.StatusRunning, DocumentsExpected: 3, DocumentsFinished: 2}, 67},
		{types.JobRun{Status: types.StatusRunning, DocumentsExpected: 4, DocumentsFinished: 9}, 100},
	}
	for _, tc := range cases {
		if got := Percent(&tc.job); got != tc.want {
			t.Fatalf("Percent(%d/%d %s) = %d, want %d", tc.job.DocumentsFinished, tc.job.DocumentsExpected, tc.job.Status, got, tc.want)
		}
	}
}

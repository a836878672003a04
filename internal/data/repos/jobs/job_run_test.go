package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/schoolfood/backoffice/internal/data/repos/testutil"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

func TestJobRunRepoClaimAndCounters(t *testing.T) {
	db := testutil.DB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	older := &types.JobRun{JobType: "delivery", CreatedAt: time.Now().Add(-time.Minute)}
	newer := &types.JobRun{JobType: "contracts"}
	if err := repo.Create(dbc, older); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(dbc, newer); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if older.ID == uuid.Nil || older.Status != types.StatusQueued {
		t.Fatalf("expected id and queued status, got %v %q", older.ID, older.Status)
	}

	claimed, err := repo.ClaimNextQueued(dbc)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed == nil || claimed.ID != older.ID || claimed.Status != types.StatusRunning {
		t.Fatalf("expected oldest job to be claimed, got %+v", claimed)
	}

	if err := repo.AddExpected(dbc, older.ID, 8); err != nil {
		t.Fatalf("AddExpected: %v", err)
	}
	for _, n := range []int{3, 4, 5} {
		if err := repo.AddFinished(dbc, older.ID, n); err != nil {
			t.Fatalf("AddFinished: %v", err)
		}
	}
	got, err := repo.GetByID(dbc, older.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DocumentsExpected != 8 || got.DocumentsFinished != 8 {
		t.Fatalf("expected 8/8, got %d/%d", got.DocumentsFinished, got.DocumentsExpected)
	}

	again, err := repo.ClaimNextQueued(dbc)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if again == nil || again.ID != newer.ID {
		t.Fatalf("expected second job, got %+v", again)
	}
	none, err := repo.ClaimNextQueued(dbc)
	if err != nil || none != nil {
		t.Fatalf("expected no claimable job, got %+v err=%v", none, err)
	}
}

func TestJobRunRepoGetMissing(t *testing.T) {
	db := testutil.DB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, uuid.New())
	if err != nil || got != nil {
		t.Fatalf("expected nil,nil for unknown job, got %+v %v", got, err)
	}
}

func TestJobRunRepoClaimCallbackOnce(t *testing.T) {
	db := testutil.DB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	job := &types.JobRun{JobType: "delivery"}
	if err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimCallback(dbc, job.ID)
			if err != nil {
				t.Errorf("ClaimCallback: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one callback claim, got %d", wins)
	}
}

func TestJobRunRepoJanitorQueries(t *testing.T) {
	db := testutil.DB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now()

	oldDone := now.Add(-2 * time.Hour)
	recentDone := now.Add(-10 * time.Minute)
	staleBeat := now.Add(-30 * time.Minute)
	freshBeat := now.Add(-time.Second)

	rows := []*types.JobRun{
		{JobType: "a", Status: types.StatusFinished, FinishedAt: &oldDone},
		{JobType: "b", Status: types.StatusFailed, FinishedAt: &oldDone},
		{JobType: "c", Status: types.StatusFinished, FinishedAt: &recentDone},
		{JobType: "d", Status: types.StatusRunning, HeartbeatAt: &staleBeat},
		{JobType: "e", Status: types.StatusRunning, HeartbeatAt: &freshBeat},
	}
	for _, j := range rows {
		if err := repo.Create(dbc, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := repo.DeleteTerminalBefore(dbc, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 evicted jobs, got %d", n)
	}
	if j, _ := repo.GetByID(dbc, rows[2].ID); j == nil {
		t.Fatalf("recent job must survive eviction")
	}

	stale, err := repo.ListStaleRunning(dbc, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("ListStaleRunning: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != rows[3].ID {
		t.Fatalf("expected only the stale running job, got %d", len(stale))
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, rows[2].ID, []string{types.StatusFinished}, map[string]interface{}{"status": types.StatusFailed})
	if err != nil || ok {
		t.Fatalf("finished job must not be overwritten: ok=%v err=%v", ok, err)
	}
}

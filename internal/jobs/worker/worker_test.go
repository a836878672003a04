package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	"github.com/schoolfood/backoffice/internal/data/repos/testutil"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

type fakeHandler struct {
	typ string
	run func(jc *runtime.Context) (any, error)

	mu        sync.Mutex
	successes []any
	failures  []error
}

func (h *fakeHandler) Type() string { return h.typ }
func (h *fakeHandler) Run(jc *runtime.Context) (any, error) { return h.run(jc) }

func (h *fakeHandler) OnSuccess(_ *runtime.Context, result any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes = append(h.successes, result)
	return nil
}

func (h *fakeHandler) OnFailure(_ *runtime.Context, cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, cause)
	return nil
}

func (h *fakeHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.successes), len(h.failures)
}

type fixture struct {
	db   *gorm.DB
	repo jobrepo.JobRunRepo
	w    *Worker
	dbc  dbctx.Context
}

func newFixture(t *testing.T, cfg Config, handlers ...runtime.Handler) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return &fixture{
		db:   db,
		repo: repo,
		w:    NewWorker(db, log, repo, reg, cfg),
		dbc:  dbctx.Context{Ctx: context.Background()},
	}
}

func (f *fixture) enqueue(t *testing.T, jobType string, payload any) uuid.UUID {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	job := &types.JobRun{JobType: jobType, Payload: datatypes.JSON(raw)}
	if err := f.repo.Create(f.dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job.ID
}

func (f *fixture) job(t *testing.T, id uuid.UUID) *types.JobRun {
	t.Helper()
	job, err := f.repo.GetByID(f.dbc, id)
	if err != nil || job == nil {
		t.Fatalf("GetByID(%s): %v %v", id, job, err)
	}
	return job
}

func (f *fixture) processOne(t *testing.T) {
	t.Helper()
	ran, err := f.w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !ran {
		t.Fatalf("expected a job to run")
	}
}

func TestProcessNextSuccess(t *testing.T) {
	h := &fakeHandler{typ: "delivery", run: func(jc *runtime.Context) (any, error) {
		var p struct {
			N int `json:"n"`
		}
		if err := jc.DecodePayload(&p); err != nil {
			return nil, err
		}
		jc.SetNotifications([]string{"numbers changed"})
		jc.AddExpected(4 * p.N)
		jc.AddFinished(4 * p.N)
		jc.AddFinished(1)
		return []string{"a.docx", "a.pdf"}, nil
	}}
	f := newFixture(t, DefaultConfig(), h)
	id := f.enqueue(t, "delivery", map[string]int{"n": 2})

	f.processOne(t)

	job := f.job(t, id)
	if job.Status != types.StatusFinished || job.FinishedAt == nil {
		t.Fatalf("expected finished job, got %q", job.Status)
	}
	if job.DocumentsExpected != 8 || job.DocumentsFinished != 8 {
		t.Fatalf("expected 8/8, got %d/%d", job.DocumentsFinished, job.DocumentsExpected)
	}
	var result []string
	if err := json.Unmarshal(job.Result, &result); err != nil || len(result) != 2 {
		t.Fatalf("unexpected result %s: %v", job.Result, err)
	}
	var notes []string
	if err := json.Unmarshal(job.Notifications, &notes); err != nil || len(notes) != 1 {
		t.Fatalf("unexpected notifications %s: %v", job.Notifications, err)
	}
	if job.CallbackAt == nil {
		t.Fatalf("expected callback to be claimed")
	}
	if s, fl := h.counts(); s != 1 || fl != 0 {
		t.Fatalf("expected one success callback, got %d/%d", s, fl)
	}

	ran, err := f.w.ProcessNext(context.Background())
	if err != nil || ran {
		t.Fatalf("finished job must not run again: ran=%v err=%v", ran, err)
	}
}

func TestProcessNextFailures(t *testing.T) {
	failing := &fakeHandler{typ: "contracts", run: func(*runtime.Context) (any, error) {
		return nil, errors.New("drive unavailable")
	}}
	panicking := &fakeHandler{typ: "annex", run: func(*runtime.Context) (any, error) {
		panic("boom")
	}}
	f := newFixture(t, DefaultConfig(), failing, panicking)

	failedID := f.enqueue(t, "contracts", map[string]int{})
	f.processOne(t)
	panicID := f.enqueue(t, "annex", map[string]int{})
	f.processOne(t)
	missingID := f.enqueue(t, "unknown", map[string]int{})
	f.processOne(t)

	cases := []struct {
		id   uuid.UUID
		want string
	}{
		{failedID, "drive unavailable"},
		{panicID, "panic: boom"},
		{missingID, "no handler registered for job_type=unknown"},
	}
	for _, tc := range cases {
		job := f.job(t, tc.id)
		if job.Status != types.StatusFailed || job.Error != tc.want {
			t.Fatalf("job %s: expected failed with %q, got %q %q", tc.id, tc.want, job.Status, job.Error)
		}
	}
	if s, fl := failing.counts(); s != 0 || fl != 1 {
		t.Fatalf("failing handler callbacks: %d/%d", s, fl)
	}
	if s, fl := panicking.counts(); s != 0 || fl != 1 {
		t.Fatalf("panicking handler callbacks: %d/%d", s, fl)
	}
}

func TestProcessNextTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := &fakeHandler{typ: "week_summary", run: func(*runtime.Context) (any, error) {
		<-release
		return "late", nil
	}}
	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	f := newFixture(t, cfg, h)
	id := f.enqueue(t, "week_summary", map[string]int{})

	f.processOne(t)

	job := f.job(t, id)
	if job.Status != types.StatusFailed || job.Error != ErrTimeout.Error() {
		t.Fatalf("expected timeout failure, got %q %q", job.Status, job.Error)
	}
	if s, fl := h.counts(); s != 0 || fl != 1 {
		t.Fatalf("expected one failure callback, got %d/%d", s, fl)
	}
}

func TestSweepEvictsAndFailsStaleJobs(t *testing.T) {
	h := &fakeHandler{typ: "delivery", run: func(*runtime.Context) (any, error) { return nil, nil }}
	f := newFixture(t, DefaultConfig(), h)
	now := time.Now()

	oldFinished := now.Add(-2 * time.Hour)
	recentFinished := now.Add(-10 * time.Minute)
	staleBeat := now.Add(-20 * time.Minute)
	freshBeat := now.Add(-time.Minute)

	expired := &types.JobRun{JobType: "delivery", Status: types.StatusFinished, FinishedAt: &oldFinished}
	recent := &types.JobRun{JobType: "delivery", Status: types.StatusFailed, FinishedAt: &recentFinished}
	stale := &types.JobRun{JobType: "delivery", Status: types.StatusRunning, HeartbeatAt: &staleBeat}
	alive := &types.JobRun{JobType: "delivery", Status: types.StatusRunning, HeartbeatAt: &freshBeat}
	for _, j := range []*types.JobRun{expired, recent, stale, alive} {
		if err := f.repo.Create(f.dbc, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	f.w.Sweep(context.Background(), now)
	f.w.Sweep(context.Background(), now)

	if got, err := f.repo.GetByID(f.dbc, expired.ID); err != nil || got != nil {
		t.Fatalf("expected expired job to be evicted, got %+v %v", got, err)
	}
	if got := f.job(t, recent.ID); got.Status != types.StatusFailed {
		t.Fatalf("recent job must be kept, got %q", got.Status)
	}
	if got := f.job(t, stale.ID); got.Status != types.StatusFailed || got.Error != ErrTimeout.Error() {
		t.Fatalf("expected stale job failed by timeout, got %q %q", got.Status, got.Error)
	}
	if got := f.job(t, alive.ID); got.Status != types.StatusRunning {
		t.Fatalf("alive job must keep running, got %q", got.Status)
	}
	if s, fl := h.counts(); s != 0 || fl != 1 {
		t.Fatalf("expected a single failure callback, got %d/%d", s, fl)
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg := Config{Concurrency: -2}.normalized()
	if cfg.Concurrency != 1 || cfg.Timeout != 10*time.Minute || cfg.Retention != time.Hour {
		t.Fatalf("unexpected normalized config: %+v", cfg)
	}
}

package worker

import (
	"context"
	"time"

	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
)

func (w *Worker) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx, time.Now())
		}
	}
}

// Sweep evicts terminal jobs past the retention window and fails running
// jobs whose heartbeat stopped for longer than the execution ceiling.
func (w *Worker) Sweep(ctx context.Context, now time.Time) {
	dbc := dbctx.Context{Ctx: ctx}

	evicted, err := w.repo.DeleteTerminalBefore(dbc, now.Add(-w.cfg.Retention))
	if err != nil {
		w.log.Warn("Evicting expired jobs failed", "error", err)
	} else if evicted > 0 {
		w.log.Info("Evicted expired jobs", "count", evicted)
	}

	stale, err := w.repo.ListStaleRunning(dbc, now.Add(-w.cfg.Timeout))
	if err != nil {
		w.log.Warn("Listing stale jobs failed", "error", err)
		return
	}
	for _, job := range stale {
		jc := runtime.NewContext(ctx, w.db, job, w.repo, w.log)
		applied, err := jc.Fail(ErrTimeout)
		if err != nil {
			jc.Log.Warn("Failing stale job failed", "error", err)
			continue
		}
		if !applied {
			continue
		}
		jc.Log.Warn("Stale job marked failed")
		if job.StartedAt != nil {
			observability.Current().ObserveJob(job.JobType, types.StatusFailed, now.Sub(*job.StartedAt))
		}
		if h, ok := w.registry.Get(job.JobType); ok {
			w.fireFailure(jc, h, ErrTimeout)
		}
	}
}

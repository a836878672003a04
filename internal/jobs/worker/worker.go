package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/jobs/runtime"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/envutil"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// ErrTimeout is recorded on jobs that ran past the execution ceiling.
var ErrTimeout = errors.New("job exceeded execution time limit")

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	Timeout           time.Duration
	HeartbeatInterval time.Duration
	Retention         time.Duration
	JanitorInterval   time.Duration
	HookTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      time.Second,
		Timeout:           10 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		Retention:         time.Hour,
		JanitorInterval:   time.Minute,
		HookTimeout:       time.Minute,
	}
}

func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		Concurrency:       envutil.Int("WORKER_CONCURRENCY", def.Concurrency),
		PollInterval:      envutil.Duration("WORKER_POLL_INTERVAL", def.PollInterval),
		Timeout:           envutil.Duration("JOB_TIMEOUT", def.Timeout),
		HeartbeatInterval: envutil.Duration("JOB_HEARTBEAT_INTERVAL", def.HeartbeatInterval),
		Retention:         envutil.Duration("JOB_RESULT_TTL", def.Retention),
		JanitorInterval:   envutil.Duration("JOB_JANITOR_INTERVAL", def.JanitorInterval),
		HookTimeout:       envutil.Duration("JOB_HOOK_TIMEOUT", def.HookTimeout),
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = def.JanitorInterval
	}
	if c.HookTimeout <= 0 {
		c.HookTimeout = def.HookTimeout
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		cfg:      cfg.normalized(),
	}
}

// Start launches the claim loops and the janitor. They stop when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"timeout", w.cfg.Timeout.String(),
		"job_types", w.registry.Types(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.janitorLoop(ctx)
	}()
}

// Wait blocks until every loop started by Start returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for ctx.Err() == nil {
				ran, err := w.ProcessNext(ctx)
				if err != nil {
					w.log.Warn("ClaimNextQueued failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// ProcessNext claims one queued job and runs it to a terminal state. It
// reports false when the queue was empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextQueued(dbctx.Context{Ctx: ctx})
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job)
	return true, nil
}

type outcome struct {
	result any
	err    error
}

func (w *Worker) execute(ctx context.Context, job *types.JobRun) {
	started := time.Now()
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.log)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		jc.Log.Warn("No handler registered for job_type")
		if _, err := jc.Fail(&missingHandlerError{JobType: job.JobType}); err != nil {
			jc.Log.Error("Persisting job failure failed", "error", err)
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	jc.Ctx = runCtx

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				jc.Log.Error("Job handler panic", "panic", r)
				done <- outcome{err: errFromRecover(r)}
			}
		}()
		res, err := h.Run(jc)
		done <- outcome{result: res, err: err}
	}()

	heartbeat := time.NewTicker(w.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	var out outcome
wait:
	for {
		select {
		case out = <-done:
			break wait
		case <-runCtx.Done():
			out = outcome{err: ErrTimeout}
			if ctx.Err() != nil {
				out.err = fmt.Errorf("worker stopped: %w", ctx.Err())
			}
			break wait
		case <-heartbeat.C:
			if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
				jc.Log.Warn("Heartbeat failed", "error", err)
			}
		}
	}

	// A timed-out handler may still be running with jc, so the terminal
	// writes and hooks get their own context over the immutable job fields.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.HookTimeout)
	defer finishCancel()
	jc = runtime.NewContext(finishCtx, w.db, &types.JobRun{
		ID:        job.ID,
		JobType:   job.JobType,
		Payload:   job.Payload,
		Status:    types.StatusRunning,
		StartedAt: job.StartedAt,
	}, w.repo, w.log)

	if out.err != nil {
		applied, err := jc.Fail(out.err)
		if err != nil {
			jc.Log.Error("Persisting job failure failed", "error", err)
			return
		}
		if applied {
			observability.Current().ObserveJob(job.JobType, types.StatusFailed, time.Since(started))
			jc.Log.Warn("Job failed", "error", out.err, "duration", time.Since(started).String())
			w.fireFailure(jc, h, out.err)
		}
		return
	}

	applied, err := jc.Succeed(out.result)
	if err != nil {
		jc.Log.Error("Persisting job result failed", "error", err)
		if applied, ferr := jc.Fail(err); ferr == nil && applied {
			w.fireFailure(jc, h, err)
		}
		return
	}
	if !applied {
		return
	}
	observability.Current().ObserveJob(job.JobType, types.StatusFinished, time.Since(started))
	jc.Log.Info("Job finished", "duration", time.Since(started).String())
	w.fireSuccess(jc, h, out.result)
}

func (w *Worker) claimCallback(jc *runtime.Context) bool {
	ok, err := w.repo.ClaimCallback(dbctx.Context{Ctx: jc.Ctx}, jc.Job.ID)
	if err != nil {
		jc.Log.Error("ClaimCallback failed", "error", err)
		return false
	}
	return ok
}

func (w *Worker) fireSuccess(jc *runtime.Context, h runtime.Handler, result any) {
	hook, ok := h.(runtime.SuccessHook)
	if !ok || !w.claimCallback(jc) {
		return
	}
	defer recoverHook(jc, "success")
	if err := hook.OnSuccess(jc, result); err != nil {
		jc.Log.Error("Success callback failed", "error", err)
	}
}

func (w *Worker) fireFailure(jc *runtime.Context, h runtime.Handler, cause error) {
	hook, ok := h.(runtime.FailureHook)
	if !ok || !w.claimCallback(jc) {
		return
	}
	defer recoverHook(jc, "failure")
	if err := hook.OnFailure(jc, cause); err != nil {
		jc.Log.Error("Failure callback failed", "error", err)
	}
}

func recoverHook(jc *runtime.Context, kind string) {
	if r := recover(); r != nil {
		jc.Log.Error("Job callback panic", "callback", kind, "panic", r)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

/*
Context is the execution handle of one claimed job run. Handlers never touch
job_run directly: payload decoding, progress counters, notifications and the
terminal transitions all go through it.

It satisfies pipeline.Progress; counters are persisted on every call so a
status read always sees the latest values.
*/
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *types.JobRun
	Repo jobrepo.JobRunRepo
	Log  *logger.Logger

	mu            sync.Mutex
	notifications []string
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobrepo.JobRunRepo, baseLog *logger.Logger) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
		Log:  baseLog,
	}
	if job != nil {
		c.Log = baseLog.With("job_id", job.ID, "job_type", job.JobType)
		_ = json.Unmarshal(job.Notifications, &c.notifications)
	}
	return c
}

func (c *Context) dbc() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return dbctx.Context{Ctx: ctx}
}

func (c *Context) jobID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ID
}

// DecodePayload unmarshals the job payload into v.
func (c *Context) DecodePayload(v any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("job has no payload")
	}
	if err := json.Unmarshal(c.Job.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Job.JobType, err)
	}
	return nil
}

func (c *Context) AddExpected(n int) {
	if n <= 0 || c.jobID() == uuid.Nil {
		return
	}
	if err := c.Repo.AddExpected(c.dbc(), c.Job.ID, n); err != nil {
		c.Log.Warn("Persisting expected documents failed", "n", n, "error", err)
		return
	}
	c.mu.Lock()
	c.Job.DocumentsExpected += n
	c.mu.Unlock()
}

func (c *Context) AddFinished(n int) {
	if n <= 0 || c.jobID() == uuid.Nil {
		return
	}
	if err := c.Repo.AddFinished(c.dbc(), c.Job.ID, n); err != nil {
		c.Log.Warn("Persisting finished documents failed", "n", n, "error", err)
		return
	}
	c.mu.Lock()
	c.Job.DocumentsFinished = min(c.Job.DocumentsFinished+n, c.Job.DocumentsExpected)
	c.mu.Unlock()
}

// SetNotifications stores operator-facing messages returned with the result.
func (c *Context) SetNotifications(msgs []string) {
	if msgs == nil {
		msgs = []string{}
	}
	c.mu.Lock()
	c.notifications = append([]string(nil), msgs...)
	c.mu.Unlock()
	if c.jobID() == uuid.Nil {
		return
	}
	raw, _ := json.Marshal(msgs)
	if err := c.Repo.UpdateFields(c.dbc(), c.Job.ID, map[string]interface{}{"notifications": datatypes.JSON(raw)}); err != nil {
		c.Log.Warn("Persisting notifications failed", "error", err)
	}
}

func (c *Context) Notifications() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.notifications...)
}

// Succeed records the result and moves the job to finished. It reports false
// when the job was already terminal (for instance failed by the time limit).
func (c *Context) Succeed(result any) (bool, error) {
	if c.jobID() == uuid.Nil {
		return false, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	now := time.Now()
	ok, err := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID,
		[]string{types.StatusFinished, types.StatusFailed},
		map[string]interface{}{
			"status":      types.StatusFinished,
			"result":      datatypes.JSON(raw),
			"error":       "",
			"finished_at": now,
			"updated_at":  now,
		})
	if err != nil || !ok {
		return false, err
	}
	c.Job.Status = types.StatusFinished
	c.Job.Result = datatypes.JSON(raw)
	c.Job.FinishedAt = &now
	return true, nil
}

// Fail moves the job to failed unless it is already terminal.
func (c *Context) Fail(cause error) (bool, error) {
	if c.jobID() == uuid.Nil {
		return false, nil
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := time.Now()
	ok, err := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID,
		[]string{types.StatusFinished, types.StatusFailed},
		map[string]interface{}{
			"status":      types.StatusFailed,
			"error":       msg,
			"finished_at": now,
			"updated_at":  now,
		})
	if err != nil || !ok {
		return false, err
	}
	c.Job.Status = types.StatusFailed
	c.Job.Error = msg
	c.Job.FinishedAt = &now
	return true, nil
}

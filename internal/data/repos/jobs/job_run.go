package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, job *types.JobRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	ClaimNextQueued(dbc dbctx.Context) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	AddExpected(dbc dbctx.Context, id uuid.UUID, n int) error
	AddFinished(dbc dbctx.Context, id uuid.UUID, n int) error
	ClaimCallback(dbc dbctx.Context, id uuid.UUID) (bool, error)
	ListStaleRunning(dbc dbctx.Context, heartbeatBefore time.Time) ([]*types.JobRun, error)
	DeleteTerminalBefore(dbc dbctx.Context, finishedBefore time.Time) (int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, job *types.JobRun) error {
	if job == nil {
		return nil
	}
	if job.Status == "" {
		job.Status = types.StatusQueued
	}
	return dbc.Conn(r.db).Create(job).Error
}

// GetByID returns nil, nil when the job does not exist.
func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextQueued moves the oldest queued job to running. Only queued jobs
// are eligible so a job never executes twice.
func (r *jobRunRepo) ClaimNextQueued(dbc dbctx.Context) (*types.JobRun, error) {
	now := time.Now()
	var claimed *types.JobRun
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		var job types.JobRun
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", types.StatusQueued).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		res := txx.Model(&types.JobRun{}).
			Where("id = ? AND status = ?", job.ID, types.StatusQueued).
			Updates(map[string]interface{}{
				"status":       types.StatusRunning,
				"started_at":   now,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		job.Status = types.StatusRunning
		job.StartedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, types.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *jobRunRepo) AddExpected(dbc dbctx.Context, id uuid.UUID, n int) error {
	if id == uuid.Nil || n <= 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"documents_expected": gorm.Expr("documents_expected + ?", n),
			"heartbeat_at":       time.Now(),
			"updated_at":         time.Now(),
		}).Error
}

// AddFinished increments the finished counter, capped at the expected count.
func (r *jobRunRepo) AddFinished(dbc dbctx.Context, id uuid.UUID, n int) error {
	if id == uuid.Nil || n <= 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"documents_finished": gorm.Expr(
				"CASE WHEN documents_finished + ? > documents_expected THEN documents_expected ELSE documents_finished + ? END",
				n, n,
			),
			"heartbeat_at": time.Now(),
			"updated_at":   time.Now(),
		}).Error
}

// ClaimCallback reports true exactly once per job: for the caller that set callback_at.
func (r *jobRunRepo) ClaimCallback(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	res := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ? AND callback_at IS NULL", id).
		Updates(map[string]interface{}{
			"callback_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) ListStaleRunning(dbc dbctx.Context, heartbeatBefore time.Time) ([]*types.JobRun, error) {
	var out []*types.JobRun
	err := dbc.Conn(r.db).
		Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", types.StatusRunning, heartbeatBefore).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRunRepo) DeleteTerminalBefore(dbc dbctx.Context, finishedBefore time.Time) (int64, error) {
	res := dbc.Conn(r.db).
		Where("status IN ? AND finished_at IS NOT NULL AND finished_at < ?",
			[]string{types.StatusFinished, types.StatusFailed}, finishedBefore).
		Delete(&types.JobRun{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

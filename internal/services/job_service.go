package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	"github.com/schoolfood/backoffice/internal/domain/documents"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

var ErrJobNotFound = errors.New("job not found")

// JobFailedError is returned by GetResult for jobs that ended in failure.
type JobFailedError struct {
	JobID uuid.UUID
	Cause string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Cause)
}

// JobProgress is the operator-facing view of a job.
type JobProgress struct {
	ID            uuid.UUID            `json:"id"`
	JobType       string               `json:"job_type"`
	Status        string               `json:"status"`
	Percent       int                  `json:"progress"`
	Documents     []documents.Artifact `json:"documents,omitempty"`
	Notifications []string             `json:"notifications,omitempty"`
	Error         string               `json:"error,omitempty"`
}

type JobService interface {
	Enqueue(dbc dbctx.Context, jobType string, payload any) (*types.JobRun, error)
	GetProgress(dbc dbctx.Context, id uuid.UUID) (*JobProgress, error)
	GetResult(dbc dbctx.Context, id uuid.UUID) ([]documents.Artifact, error)
}

type jobService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo jobrepo.JobRunRepo
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo jobrepo.JobRunRepo) JobService {
	return &jobService{
		db:   db,
		log:  baseLog.With("service", "JobService"),
		repo: repo,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, jobType string, payload any) (*types.JobRun, error) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	payloadJSON := datatypes.JSON([]byte(`{}`))
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		payloadJSON = datatypes.JSON(b)
	}
	job := &types.JobRun{
		JobType:       jobType,
		Status:        types.StatusQueued,
		Payload:       payloadJSON,
		Notifications: datatypes.JSON([]byte(`[]`)),
	}
	if err := s.repo.Create(dbc, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("Job enqueued", "job_id", job.ID, "job_type", jobType)
	return job, nil
}

func (s *jobService) load(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// GetProgress reads the persisted counters of a job. Evicted and unknown jobs
// both yield ErrJobNotFound.
func (s *jobService) GetProgress(dbc dbctx.Context, id uuid.UUID) (*JobProgress, error) {
	job, err := s.load(dbc, id)
	if err != nil {
		return nil, err
	}
	out := &JobProgress{
		ID:      job.ID,
		JobType: job.JobType,
		Status:  job.Status,
		Percent: Percent(job),
		Error:   job.Error,
	}
	if len(job.Notifications) > 0 {
		if err := json.Unmarshal(job.Notifications, &out.Notifications); err != nil {
			s.log.Warn("Malformed job notifications", "job_id", job.ID, "error", err)
		}
	}
	if job.Status == types.StatusFinished {
		out.Documents, err = decodeArtifacts(job.Result)
		if err != nil {
			s.log.Warn("Malformed job result", "job_id", job.ID, "error", err)
		}
	}
	return out, nil
}

func (s *jobService) GetResult(dbc dbctx.Context, id uuid.UUID) ([]documents.Artifact, error) {
	job, err := s.load(dbc, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case types.StatusFinished:
		return decodeArtifacts(job.Result)
	case types.StatusFailed:
		return nil, &JobFailedError{JobID: job.ID, Cause: job.Error}
	default:
		return nil, fmt.Errorf("job %s is %s", job.ID, job.Status)
	}
}

// Percent is round(finished/expected*100) clamped to [0,100]; finished jobs
// always report 100.
func Percent(job *types.JobRun) int {
	if job == nil {
		return 0
	}
	if job.Status == types.StatusFinished {
		return 100
	}
	if job.DocumentsExpected <= 0 {
		return 0
	}
	p := int(math.Round(float64(job.DocumentsFinished) / float64(job.DocumentsExpected) * 100))
	return max(0, min(p, 100))
}

func decodeArtifacts(raw datatypes.JSON) ([]documents.Artifact, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []documents.Artifact{}, nil
	}
	var out []documents.Artifact
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	return out, nil
}

package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// JobRun is one asynchronous execution of a registered job type.
// DocumentsFinished never exceeds DocumentsExpected; the repo enforces it in SQL.
type JobRun struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType           string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status            string         `gorm:"column:status;not null;index" json:"status"`
	Payload           datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result            datatypes.JSON `gorm:"column:result" json:"result"`
	Notifications     datatypes.JSON `gorm:"column:notifications" json:"notifications"`
	Error             string         `gorm:"column:error" json:"error,omitempty"`
	DocumentsExpected int            `gorm:"column:documents_expected;not null;default:0" json:"documents_expected"`
	DocumentsFinished int            `gorm:"column:documents_finished;not null;default:0" json:"documents_finished"`
	StartedAt         *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt        *time.Time     `gorm:"column:finished_at;index" json:"finished_at,omitempty"`
	HeartbeatAt       *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CallbackAt        *time.Time     `gorm:"column:callback_at" json:"callback_at,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }

func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether the job reached finished or failed.
func (j *JobRun) Terminal() bool {
	return j.Status == StatusFinished || j.Status == StatusFailed
}

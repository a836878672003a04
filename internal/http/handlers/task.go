package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/schoolfood/backoffice/internal/domain/documents"
	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/http/response"
	"github.com/schoolfood/backoffice/internal/platform/apierr"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/services"
)

const (
	msgTaskFailed  = "Task failed to finish"
	msgTaskUnknown = "Task does not exist or already finished"
)

type TaskHandler struct {
	jobs services.JobService
}

func NewTaskHandler(jobs services.JobService) *TaskHandler {
	return &TaskHandler{jobs: jobs}
}

// POST /api/tasks/:kind
func (h *TaskHandler) Submit(c *gin.Context) {
	kind := c.Param("kind")
	payload, err := types.NewPayload(kind)
	if err != nil {
		response.RespondAPIError(c, apierr.New(http.StatusNotFound, "unknown_task_kind", err))
		return
	}
	if err := c.ShouldBindJSON(payload); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	if err := payload.Validate(); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	job, err := h.jobs.Enqueue(dbctx.Context{Ctx: c.Request.Context()}, kind, payload)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": job.ID})
}

// GET /api/tasks/:id/progress
//
// Failed and unknown tasks answer 500 so polling clients stop on any non-2xx.
func (h *TaskHandler) Progress(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		unknownTask(c)
		return
	}
	p, err := h.jobs.GetProgress(dbctx.Context{Ctx: c.Request.Context()}, id)
	if errors.Is(err, services.ErrJobNotFound) {
		unknownTask(c)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "progress_failed", err)
		return
	}

	switch p.Status {
	case types.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"progress": p.Percent, "message": msgTaskFailed})
	case types.StatusFinished:
		notifications := p.Notifications
		if notifications == nil {
			notifications = []string{}
		}
		c.JSON(http.StatusOK, gin.H{
			"progress":     p.Percent,
			"documents":    documents.Strings(p.Documents),
			"notification": notifications,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"progress": p.Percent})
	}
}

func unknownTask(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"progress": -1, "message": msgTaskUnknown})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schoolfood/backoffice/internal/http/response"
	"github.com/schoolfood/backoffice/internal/services"
)

type RecordHandler struct {
	states services.RecordStateService
}

func NewRecordHandler(states services.RecordStateService) *RecordHandler {
	return &RecordHandler{states: states}
}

type markDeliveredRequest struct {
	Records []uint `json:"records"`
}

// POST /api/records/delivered
//
// Only GENERATED records move; the answer counts the ones that did.
func (h *RecordHandler) MarkDelivered(c *gin.Context) {
	var req markDeliveredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	if len(req.Records) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_payload", errors.New("records must not be empty"))
		return
	}
	n, err := h.states.MarkDelivered(c.Request.Context(), req.Records)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "mark_delivered_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"updated": n})
}

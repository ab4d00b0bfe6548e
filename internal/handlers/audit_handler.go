package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/services"
	"github.com/school-system/results-engine/internal/store"
)

// AuditHandler exposes the marks history ledger.
type AuditHandler struct {
	results *services.ResultsService
}

func NewAuditHandler(results *services.ResultsService) *AuditHandler {
	return &AuditHandler{results: results}
}

func (h *AuditHandler) GetHistory(c *gin.Context) {
	filter := store.HistoryFilter{Model: models.ResultModel(c.Query("model"))}
	for param, dst := range map[string]**uuid.UUID{
		"result_id":  &filter.ResultID,
		"student_id": &filter.StudentID,
		"subject_id": &filter.SubjectID,
		"exam_id":    &filter.ExamID,
	} {
		v := c.Query(param)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
			return
		}
		*dst = &id
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 1000 {
			limit = 100
		}
		filter.Limit = limit
	}

	entries, err := h.results.GetHistory(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AuditHandler) Revert(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	entryID, ok := parseIDParam(c, "id", "history entry ID")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"max=500"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.results.Revert(c.Request.Context(), userID, entryID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

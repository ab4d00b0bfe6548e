package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/eligibility"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/services"
)

type ResultHandler struct {
	results *services.ResultsService
}

func NewResultHandler(results *services.ResultsService) *ResultHandler {
	return &ResultHandler{results: results}
}

// CreateOrUpdate records one mark, creating the result or updating the one
// already stored for (student, subject, exam).
func (h *ResultHandler) CreateOrUpdate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.MarkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.results.RecordMark(c.Request.Context(), userID, req)
	if err != nil {
		if errors.Is(err, eligibility.ErrNotEligible) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": models.WarnNotEligible})
			return
		}
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

// Batch saves a whole mark sheet for one exam. Each row is reported on its
// own; the response is 200 even when some rows were rejected.
func (h *ResultHandler) Batch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		ExamID uuid.UUID           `json:"exam_id" binding:"required"`
		Rows   []services.BatchRow `json:"rows" binding:"required,min=1,max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statuses := h.results.RecordBatch(c.Request.Context(), userID, req.ExamID, req.Rows)

	counts := map[string]int{services.RowSaved: 0, services.RowFlagged: 0, services.RowRejected: 0}
	for _, st := range statuses {
		counts[st.Status]++
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":     statuses,
		"saved":    counts[services.RowSaved],
		"flagged":  counts[services.RowFlagged],
		"rejected": counts[services.RowRejected],
	})
}

func (h *ResultHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	model := models.ResultModel(c.Param("model"))
	resultID, ok := parseIDParam(c, "id", "result ID")
	if !ok {
		return
	}

	entry, err := h.results.DeleteMark(c.Request.Context(), userID, model, resultID, c.Query("reason"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Result deleted", "history": entry})
}

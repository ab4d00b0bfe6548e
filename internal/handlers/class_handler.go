package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/school-system/results-engine/internal/services"
)

type ClassHandler struct {
	summary *services.SummaryService
}

func NewClassHandler(summary *services.SummaryService) *ClassHandler {
	return &ClassHandler{summary: summary}
}

// GetSummary returns the ranked results of a class for one exam. The
// computation stops if the client goes away.
func (h *ClassHandler) GetSummary(c *gin.Context) {
	classID, ok := parseIDParam(c, "id", "class ID")
	if !ok {
		return
	}
	examID, ok := parseIDParam(c, "exam_id", "exam ID")
	if !ok {
		return
	}

	summary, err := h.summary.ComputeClassSummary(c.Request.Context(), classID, examID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

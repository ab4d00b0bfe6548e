package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/services"
)

type StudentHandler struct {
	summary      *services.SummaryService
	combinations *services.CombinationService
}

func NewStudentHandler(summary *services.SummaryService, combinations *services.CombinationService) *StudentHandler {
	return &StudentHandler{summary: summary, combinations: combinations}
}

func (h *StudentHandler) GetSummary(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id", "student ID")
	if !ok {
		return
	}
	examID, ok := parseIDParam(c, "exam_id", "exam ID")
	if !ok {
		return
	}

	summary, err := h.summary.ComputeStudentSummary(c.Request.Context(), studentID, examID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AssignCombination sets an A-Level student's subject combination. A null
// combination_id clears it.
func (h *StudentHandler) AssignCombination(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id", "student ID")
	if !ok {
		return
	}

	var req struct {
		CombinationID *uuid.UUID `json:"combination_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.combinations.Assign(c.Request.Context(), studentID, req.CombinationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

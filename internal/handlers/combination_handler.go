package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/school-system/results-engine/internal/services"
)

type CombinationHandler struct {
	combinations *services.CombinationService
}

func NewCombinationHandler(combinations *services.CombinationService) *CombinationHandler {
	return &CombinationHandler{combinations: combinations}
}

// Ingest accepts any supported upstream combination shape in "subjects" and
// stores the normalised combination.
func (h *CombinationHandler) Ingest(c *gin.Context) {
	var req services.CombinationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	combo, err := h.combinations.Ingest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, combo)
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/services"
)

type GradingHandler struct {
	policies *services.PolicyService
}

func NewGradingHandler(policies *services.PolicyService) *GradingHandler {
	return &GradingHandler{policies: policies}
}

func curriculumParam(c *gin.Context) models.Curriculum {
	return models.Curriculum(strings.ToUpper(c.Param("curriculum")))
}

func (h *GradingHandler) GetPolicy(c *gin.Context) {
	policy, version, err := h.policies.Get(c.Request.Context(), curriculumParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy": policy, "rule_version": version})
}

// UpdatePolicy replaces the grading policy of a curriculum. Every cached
// copy is dropped, so summaries computed after the response use it.
func (h *GradingHandler) UpdatePolicy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req grading.Policy
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, version, err := h.policies.Update(c.Request.Context(), userID, curriculumParam(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy": policy, "rule_version": version})
}

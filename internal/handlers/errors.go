package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/eligibility"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/history"
	"github.com/school-system/results-engine/internal/middleware"
	"github.com/school-system/results-engine/internal/services"
	"github.com/school-system/results-engine/internal/store"
)

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, grading.ErrOutOfRange),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, history.ErrNotRestorable):
		return http.StatusBadRequest
	case errors.Is(err, eligibility.ErrNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, history.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	switch {
	case errors.Is(err, store.ErrConflict):
		body["retriable"] = true
	case status == http.StatusInternalServerError:
		log.Printf("[%s] internal error: %v", c.GetString("trace_id"), err)
		body["error"] = "Internal server error"
	}
	c.Error(err)
	c.JSON(status, body)
}

func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label})
		return uuid.Nil, false
	}
	return id, true
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return uuid.Nil, false
	}
	return id, true
}

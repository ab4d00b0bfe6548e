package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/school-system/results-engine/internal/middleware"
	"github.com/school-system/results-engine/internal/services"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Results      *services.ResultsService
	Summary      *services.SummaryService
	Policies     *services.PolicyService
	Combinations *services.CombinationService
}

// RegisterRoutes mounts the /api/v1 routes on r behind token verification.
func RegisterRoutes(r gin.IRouter, svc Services, verifier *middleware.TokenVerifier) {
	resultHandler := NewResultHandler(svc.Results)
	auditHandler := NewAuditHandler(svc.Results)
	classHandler := NewClassHandler(svc.Summary)
	studentHandler := NewStudentHandler(svc.Summary, svc.Combinations)
	combinationHandler := NewCombinationHandler(svc.Combinations)
	gradingHandler := NewGradingHandler(svc.Policies)

	v1 := r.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(verifier))
	{
		protected.POST("/results", resultHandler.CreateOrUpdate)
		protected.POST("/results/batch", resultHandler.Batch)

		protected.GET("/history", auditHandler.GetHistory)

		protected.GET("/students/:id/exams/:exam_id/summary", studentHandler.GetSummary)
		protected.GET("/classes/:id/exams/:exam_id/summary", classHandler.GetSummary)
		protected.GET("/grading-policies/:curriculum", gradingHandler.GetPolicy)

		admin := protected.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.DELETE("/results/:model/:id", resultHandler.Delete)
			admin.POST("/history/:id/revert", auditHandler.Revert)
			admin.PUT("/grading-policies/:curriculum", gradingHandler.UpdatePolicy)
			admin.POST("/combinations", combinationHandler.Ingest)
			admin.PUT("/students/:id/combination", studentHandler.AssignCombination)
		}
	}
}

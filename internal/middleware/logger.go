package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := uuid.New().String()
		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if len(c.Errors) > 0 {
			log.Printf("[%s] %s %s %d %s errors=%s", traceID, method, path, statusCode, latency, c.Errors.String())
			return
		}
		log.Printf("[%s] %s %s %d %s", traceID, method, path, statusCode, latency)
	}
}

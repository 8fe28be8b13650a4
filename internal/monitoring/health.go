package monitoring

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CheckFunc probes one dependency; a nil return means healthy.
type CheckFunc func() error

var startTime = time.Now()

// LivenessHandler always reports alive while the process is up.
func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Server is running",
			"uptime":  time.Since(startTime).String(),
		})
	}
}

// ReadinessHandler runs the registered dependency checks and reports 503
// when any of them fails.
func ReadinessHandler(checks map[string]CheckFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := make(map[string]string, len(checks))
		ready := true

		for name, check := range checks {
			if err := check(); err != nil {
				results[name] = err.Error()
				ready = false
			} else {
				results[name] = "ok"
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"success": ready,
			"checks":  results,
		})
	}
}

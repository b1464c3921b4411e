package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/monitoring"
	"github.com/charlesng35/campuslink/pkg/response"
)

// Health evaluates the registered probes. Any failing probe turns the response into a 503.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			response.Success(c, http.StatusOK, monitoring.HealthReport{Status: monitoring.StatusUp, Checks: []monitoring.ProbeResult{}})
			return
		}

		report := manager.Evaluate(requestContext(c))
		status := http.StatusOK
		if report.Status == monitoring.StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response.Response{Success: report.Status != monitoring.StatusDown, Data: report})
	}
}

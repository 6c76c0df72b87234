package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/poller"
	"github.com/KevinKickass/IOLinkBridge/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/system/shutdown
func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Shutdown initiated",
	})

	// Request-Context endet mit der Antwort, daher eigener Context
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.lm.Shutdown(ctx); err != nil {
			s.logger.Error("Shutdown via API failed", zap.Error(err))
		}
	}()
}

// POST /api/v1/poll
func (s *Server) triggerPoll(c *gin.Context) {
	result, err := s.lm.TriggerPoll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodePollUnavailable, "Poll not possible", err.Error()))
		return
	}

	body := cycleResponse(result)
	if result.Failed() {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": types.NewErrorBody(types.CodePollFailed, "Poll cycle failed", result.Err.Error()),
			"cycle": body,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cycle": body})
}

func cycleResponse(result poller.CycleResult) gin.H {
	readings := make(map[int]interface{}, len(result.Readings))
	for port, reading := range result.Readings {
		values := make(map[string]float64, len(reading.Measurements))
		for _, m := range reading.Measurements {
			values[m.Key] = m.Value
		}
		readings[port] = gin.H{
			"model":  reading.ModelName,
			"values": values,
		}
	}

	portErrors := make(map[int]string, len(result.PortErrors))
	for port, err := range result.PortErrors {
		portErrors[port] = err.Error()
	}

	body := gin.H{
		"id":          result.ID.String(),
		"started_at":  result.StartedAt,
		"duration_ms": result.Duration.Milliseconds(),
		"host_alive":  result.HostAlive,
		"ports":       result.Assignment,
		"readings":    readings,
		"port_errors": portErrors,
		"fatal":       result.Fatal,
	}
	if result.Delta != nil {
		body["temperature_delta"] = *result.Delta
	}
	return body
}

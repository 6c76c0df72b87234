package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/ports
func (s *Server) listPorts(c *gin.Context) {
	assignment := s.lm.Assignment()

	response := make([]gin.H, 0, len(assignment))
	for _, a := range assignment {
		entry := gin.H{
			"port":         a.Port,
			"product_name": a.ProductName,
			"model":        a.Model.String(),
		}
		if ref, ok := s.lm.SensorIndex().Describe(a.ProductName); ok {
			entry["name"] = ref.Name
			entry["description"] = ref.Description
		}
		response = append(response, entry)
	}

	body := gin.H{
		"ports":      response,
		"port_count": s.lm.Config().Master.PortCount,
	}
	if last, ok := s.lm.LastCycle(); ok {
		body["last_cycle_id"] = last.ID.String()
		if last.Err != nil {
			body["last_cycle_error"] = last.Err.Error()
		}
	}

	c.JSON(http.StatusOK, body)
}

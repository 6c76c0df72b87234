package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/sensors
func (s *Server) listSensors(c *gin.Context) {
	index := s.lm.SensorIndex()
	names := s.lm.Catalog().Names()

	sensors := make([]gin.H, 0, len(names))
	for _, name := range names {
		entry := gin.H{"product_name": name}
		if ref, ok := index.Describe(name); ok {
			entry["name"] = ref.Name
			entry["description"] = ref.Description
			entry["datasheet"] = ref.Datasheet
			entry["tested"] = ref.Tested
		}
		sensors = append(sensors, entry)
	}

	body := gin.H{
		"sensors": sensors,
		"count":   len(sensors),
	}
	if index != nil {
		body["vendor"] = index.Vendor
		body["website"] = index.Website
	}

	c.JSON(http.StatusOK, body)
}

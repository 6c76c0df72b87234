package rest

import (
	"net/http"
	"sort"
	"strings"

	"github.com/KevinKickass/IOLinkBridge/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/states?prefix=Sensors
func (s *Server) listStates(c *gin.Context) {
	prefix := c.Query("prefix")
	store := s.lm.States()

	response := make([]gin.H, 0)
	for _, st := range store.ListStates() {
		if prefix != "" && !strings.HasPrefix(st.Key, prefix) {
			continue
		}
		entry := gin.H{
			"key": st.Key,
			"val": st.Value,
			"ack": st.Ack,
			"ts":  st.Timestamp,
		}
		if meta, ok := store.GetObject(st.Key); ok {
			entry["unit"] = meta.Unit
			entry["role"] = meta.Role
		}
		response = append(response, entry)
	}

	sort.Slice(response, func(i, j int) bool {
		return response[i]["key"].(string) < response[j]["key"].(string)
	})

	c.JSON(http.StatusOK, gin.H{
		"states": response,
		"count":  len(response),
	})
}

// GET /api/v1/states/:key
func (s *Server) getState(c *gin.Context) {
	key := c.Param("key")
	store := s.lm.States()

	meta, declared := store.GetObject(key)
	st, err := store.GetState(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeStateRead, "Failed to read state", err.Error()))
		return
	}
	if st == nil && !declared {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeStateNotFound, "State not found", key))
		return
	}

	response := gin.H{
		"key":    key,
		"object": meta,
	}
	if st != nil {
		response["val"] = st.Value
		response["ack"] = st.Ack
		response["ts"] = st.Timestamp
	} else {
		response["val"] = nil
	}

	c.JSON(http.StatusOK, response)
}

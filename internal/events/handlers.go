package events

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mintforge/synth-api/pkg/response"
)

// GinHandlers contains HTTP handlers for audit event endpoints
type GinHandlers struct {
	recorder *Recorder
}

// NewGinHandlers creates a new set of HTTP handlers for audit event endpoints
func NewGinHandlers(recorder *Recorder) *GinHandlers {
	return &GinHandlers{recorder: recorder}
}

// ListEventsHandler handles GET requests for recent audit events. Query
// parameters: type (optional filter), limit (default 100, capped at 500).
// Requires admin authentication.
func (h *GinHandlers) ListEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 0 {
			response.BadRequest(c, "limit must be a non-negative number")
			return
		}

		records, err := h.recorder.List(c.Query("type"), limit)
		response.Handle(c, records, err)
	}
}

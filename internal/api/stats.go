package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats handles GET /api/stats
// Returns task table statistics for dashboard visualization
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.manager.Stats(c.Request.Context())
	if err != nil {
		slog.Error("Failed to get stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve statistics",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

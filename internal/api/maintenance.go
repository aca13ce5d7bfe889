package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CleanupRequest is the body of POST /api/cleanup. Zero values fall back to
// the server's configured ages.
type CleanupRequest struct {
	TaskAgeDays  int `json:"task_age_days"`
	EventAgeDays int `json:"event_age_days"`
}

// CleanupResponse reports how many rows each sweep removed.
type CleanupResponse struct {
	TasksRemoved   int64 `json:"tasks_removed"`
	EventsRemoved  int64 `json:"events_removed"`
	OrphansRemoved int64 `json:"orphans_removed"`
}

// Cleanup handles POST /api/cleanup
// Sweeps old tasks, old events, and orphans in one pass.
func (h *Handler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}
	if req.TaskAgeDays <= 0 {
		req.TaskAgeDays = 7
	}
	if req.EventAgeDays <= 0 {
		req.EventAgeDays = 7
	}

	ctx := c.Request.Context()
	var resp CleanupResponse
	var err error

	if resp.TasksRemoved, err = h.manager.CleanupOldTasks(ctx, req.TaskAgeDays); err != nil {
		slog.Error("Task cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
		return
	}
	if resp.EventsRemoved, err = h.manager.CleanupOldEvents(ctx, req.EventAgeDays); err != nil {
		slog.Error("Event cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
		return
	}
	if resp.OrphansRemoved, err = h.manager.CleanupOrphans(ctx); err != nil {
		slog.Error("Orphan cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
		return
	}

	slog.Info("Cleanup completed",
		"tasks_removed", resp.TasksRemoved,
		"events_removed", resp.EventsRemoved,
		"orphans_removed", resp.OrphansRemoved,
	)
	c.JSON(http.StatusOK, resp)
}

package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/schedq/schedq/internal/scheduler"
)

// EventResponse is one event row as served to clients.
type EventResponse struct {
	ID          int64  `json:"id"`
	TaskID      int64  `json:"task_id,omitempty"`
	OccurredAt  string `json:"occurred_at"`
	Description string `json:"description,omitempty"`
}

// ListTaskEvents handles GET /api/tasks/:id/events
// Returns the task's event log, oldest first.
func (h *Handler) ListTaskEvents(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	cursor, err := h.manager.GetTaskEvents(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to list task events", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve events",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": eventResponses(cursor)})
}

// ListAllEvents handles GET /api/events
// Returns every event, task-bound and free-standing, oldest first.
func (h *Handler) ListAllEvents(c *gin.Context) {
	cursor, err := h.manager.GetAllEvents(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve events",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": eventResponses(cursor)})
}

func eventResponses(cursor *scheduler.EventsCursor) []EventResponse {
	events := make([]EventResponse, 0, cursor.Count())
	for cursor.Next() {
		events = append(events, EventResponse{
			ID:          cursor.ID(),
			TaskID:      cursor.TaskID(),
			OccurredAt:  cursor.OccurredAt(),
			Description: cursor.Event().EvtMeta().Description,
		})
	}
	return events
}

// DeleteEvent handles DELETE /api/events/:id
func (h *Handler) DeleteEvent(c *gin.Context) {
	idParam := c.Param("id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		slog.Warn("Invalid event ID", "id", idParam, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event ID",
		})
		return
	}

	if err := h.manager.DeleteEvent(c.Request.Context(), id); err != nil {
		slog.Error("Failed to delete event", "event_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete event",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

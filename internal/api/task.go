package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/schedq/schedq/internal/scheduler"
	"github.com/schedq/schedq/internal/storage"
)

// SubmitTaskRequest is the body of POST /api/tasks.
type SubmitTaskRequest struct {
	Queue    string          `json:"queue" binding:"required"`
	Type     string          `json:"type" binding:"required"`
	Priority int64           `json:"priority"`
	Payload  json.RawMessage `json:"payload"`
}

// TaskResponse is one task row as served to clients.
type TaskResponse struct {
	ID            int64  `json:"id"`
	QueueID       int64  `json:"queue_id"`
	Status        string `json:"status"`
	QueuedAt      string `json:"queued_at"`
	RetryAt       string `json:"retry_at"`
	RetryCount    int    `json:"retry_count"`
	Priority      int64  `json:"priority"`
	FailureReason string `json:"failure_reason,omitempty"`
	EventCount    int    `json:"event_count"`
	Description   string `json:"description,omitempty"`
	Running       bool   `json:"running"`
}

// SubmitTask handles POST /api/tasks
// Instantiates a registered payload type and enqueues it.
func (h *Handler) SubmitTask(c *gin.Context) {
	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	task, err := h.codec.NewTask(req.Type, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid task payload",
			"details": err.Error(),
		})
		return
	}

	if err := h.manager.Submit(c.Request.Context(), task, req.Queue, req.Priority); err != nil {
		if errors.Is(err, storage.ErrUnknownQueue) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Queue not found; initialize it first",
			})
			return
		}
		slog.Error("Failed to submit task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit task",
		})
		return
	}

	slog.Info("Task submitted",
		"task_id", task.Meta().ID(),
		"queue", req.Queue,
		"type", req.Type,
		"priority", req.Priority,
	)
	c.JSON(http.StatusCreated, gin.H{
		"id":     task.Meta().ID(),
		"status": "Q",
	})
}

// InitializeQueue handles POST /api/queues/:name
// Creates the queue if absent and starts its worker. Idempotent.
func (h *Handler) InitializeQueue(c *gin.Context) {
	name := c.Param("name")
	if err := h.manager.InitializeQueue(c.Request.Context(), name); err != nil {
		slog.Error("Failed to initialize queue", "queue", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to initialize queue",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": name})
}

// ListTasks handles GET /api/tasks?kind=all|failed|active|queued
func (h *Handler) ListTasks(c *gin.Context) {
	kind := storage.TaskKind(c.DefaultQuery("kind", string(storage.TaskKindAll)))
	if !kind.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid task kind",
		})
		return
	}

	cursor, err := h.manager.GetTasks(c.Request.Context(), kind)
	if err != nil {
		slog.Error("Failed to list tasks", "kind", kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve tasks",
		})
		return
	}

	tasks := make([]TaskResponse, 0, cursor.Count())
	for cursor.Next() {
		tasks = append(tasks, h.taskResponse(cursor))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) taskResponse(cursor *scheduler.TasksCursor) TaskResponse {
	return TaskResponse{
		ID:            cursor.ID(),
		QueueID:       cursor.QueueID(),
		Status:        cursor.Status().String(),
		QueuedAt:      cursor.QueuedAt(),
		RetryAt:       cursor.RetryAt(),
		RetryCount:    cursor.RetryCount(),
		Priority:      cursor.Priority(),
		FailureReason: cursor.FailureReason(),
		EventCount:    cursor.EventCount(),
		Description:   cursor.Task().Meta().Description,
		Running:       h.manager.IsRunning(cursor.ID()),
	}
}

// DeleteTask handles DELETE /api/tasks/:id
// Removes the task and its events; a running task is asked to abort first.
func (h *Handler) DeleteTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	if err := h.manager.DeleteTask(c.Request.Context(), id); err != nil {
		slog.Error("Failed to delete task", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete task",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// BringTaskToFront handles POST /api/tasks/:id/front
func (h *Handler) BringTaskToFront(c *gin.Context) {
	h.reprioritize(c, h.manager.BringTaskToFront)
}

// SendTaskToBack handles POST /api/tasks/:id/back
func (h *Handler) SendTaskToBack(c *gin.Context) {
	h.reprioritize(c, h.manager.SendTaskToBack)
}

func (h *Handler) reprioritize(c *gin.Context, move func(context.Context, int64) error) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	if err := move(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
			return
		}
		slog.Error("Failed to reprioritize task", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reprioritize task",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// taskID parses the :id path parameter, replying 400 on garbage.
func (h *Handler) taskID(c *gin.Context) (int64, bool) {
	idParam := c.Param("id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		slog.Warn("Invalid task ID", "id", idParam, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid task ID",
		})
		return 0, false
	}
	return id, true
}

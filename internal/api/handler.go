package api

import (
	"github.com/gin-gonic/gin"

	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/scheduler"
)

// Handler handles HTTP requests for the scheduler API
type Handler struct {
	manager *scheduler.Manager
	codec   *codec.JSON
}

// NewHandler creates a new API handler
func NewHandler(manager *scheduler.Manager, c *codec.JSON) *Handler {
	return &Handler{
		manager: manager,
		codec:   c,
	}
}

// RegisterRoutes registers all API routes on the given router
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Health check endpoint
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		// Queue management
		api.POST("/queues/:name", h.InitializeQueue)

		// Task management
		api.POST("/tasks", h.SubmitTask)
		api.GET("/tasks", h.ListTasks)
		api.DELETE("/tasks/:id", h.DeleteTask)
		api.POST("/tasks/:id/front", h.BringTaskToFront)
		api.POST("/tasks/:id/back", h.SendTaskToBack)

		// Event log
		api.GET("/tasks/:id/events", h.ListTaskEvents)
		api.GET("/events", h.ListAllEvents)
		api.DELETE("/events/:id", h.DeleteEvent)

		// Maintenance
		api.POST("/cleanup", h.Cleanup)

		// Dashboard statistics endpoint
		api.GET("/stats", h.GetStats)
	}
}

// Health checks if the service is healthy
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy"})
}

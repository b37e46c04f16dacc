package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/podlab/podcast-backend-go/internal/service"
	"github.com/podlab/podcast-backend-go/internal/store"
	"github.com/podlab/podcast-backend-go/pkg/response"
)

// TaskHandler handles podcast submission and status queries
type TaskHandler struct {
	service *service.PodcastService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(service *service.PodcastService) *TaskHandler {
	return &TaskHandler{service: service}
}

// CreatePodcastRequest represents the request body for submitting a source
type CreatePodcastRequest struct {
	SourceURL string `json:"source_url" binding:"required,url"`
}

// Create submits a source URL and starts its pipeline
// POST /api/v1/podcasts
func (h *TaskHandler) Create(c *gin.Context) {
	var req CreatePodcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: source_url must be a valid URL")
		return
	}

	task, err := h.service.CreatePodcast(req.SourceURL)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, task)
}

// GetStatus returns the task's current snapshot
// GET /api/v1/podcasts/:id/status
func (h *TaskHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetTask(c.Param("id"))
	if err == store.ErrTaskNotFound {
		response.NotFound(c, "Task not found")
		return
	}
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, task)
}

// Evict triggers an immediate sweep of expired terminal tasks (admin only)
// POST /api/v1/admin/tasks/evict
func (h *TaskHandler) Evict(c *gin.Context) {
	response.Success(c, gin.H{"evicted": h.service.EvictNow()})
}

// ListCompleted returns completed tasks, newest first
// GET /api/v1/podcasts/completed
func (h *TaskHandler) ListCompleted(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		response.BadRequest(c, "Invalid limit")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.BadRequest(c, "Invalid offset")
		return
	}

	tasks := h.service.ListCompleted(limit, offset)
	response.Success(c, gin.H{
		"tasks":  tasks,
		"limit":  limit,
		"offset": offset,
	})
}

package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/podlab/podcast-backend-go/internal/service"
	"github.com/podlab/podcast-backend-go/pkg/response"
)

// EpisodeHandler handles the archived episode library
type EpisodeHandler struct {
	service *service.PodcastService
}

// NewEpisodeHandler creates a new episode handler
func NewEpisodeHandler(service *service.PodcastService) *EpisodeHandler {
	return &EpisodeHandler{service: service}
}

// List returns archived episodes, newest first
// GET /api/v1/episodes
func (h *EpisodeHandler) List(c *gin.Context) {
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

	episodes, err := h.service.ListEpisodes(limit, offset)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"episodes": episodes,
		"limit":    limit,
		"offset":   offset,
	})
}

// Get returns one archived episode
// GET /api/v1/episodes/:id
func (h *EpisodeHandler) Get(c *gin.Context) {
	ep, err := h.service.GetEpisode(c.Param("id"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.Success(c, ep)
}

// Delete removes one archived episode (admin only)
// DELETE /api/v1/admin/episodes/:id
func (h *EpisodeHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteEpisode(c.Param("id")); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.Success(c, gin.H{"message": "Episode deleted"})
}

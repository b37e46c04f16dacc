package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/podlab/podcast-backend-go/internal/config"
	"github.com/podlab/podcast-backend-go/internal/handler"
	"github.com/podlab/podcast-backend-go/internal/middleware"
)

// SetupRouter wires routes, middleware and static artifact serving.
func SetupRouter(cfg *config.Config, tasks *handler.TaskHandler, streams *handler.StreamHandler, episodes *handler.EpisodeHandler, audioDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimitWindow()))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Podcast Backend API is running",
		})
	})

	// Rendered audio artifacts (ephemeral, swept by TTL)
	r.Static("/audio", audioDir)

	api := r.Group("/api/v1")
	{
		podcasts := api.Group("/podcasts")
		{
			podcasts.POST("", tasks.Create)
			podcasts.GET("/completed", tasks.ListCompleted)
			podcasts.GET("/:id/status", tasks.GetStatus)
			podcasts.GET("/:id/stream", streams.Stream)
		}

		eps := api.Group("/episodes")
		{
			eps.GET("", episodes.List)
			eps.GET("/:id", episodes.Get)
		}

		admin := api.Group("/admin", middleware.Auth(cfg.Auth.JWTSecret))
		{
			admin.DELETE("/episodes/:id", episodes.Delete)
			admin.POST("/tasks/evict", tasks.Evict)
		}
	}

	return r
}

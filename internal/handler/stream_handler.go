package handler

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/podlab/podcast-backend-go/internal/broadcast"
	"github.com/podlab/podcast-backend-go/internal/models"
	"github.com/podlab/podcast-backend-go/internal/service"
	"github.com/podlab/podcast-backend-go/internal/store"
	"github.com/podlab/podcast-backend-go/pkg/response"
)

// StreamHandler exposes live task snapshots over Server-Sent Events. It is
// the transport adapter between the broadcast registry and a web client.
type StreamHandler struct {
	service      *service.PodcastService
	registry     *broadcast.Registry
	pingInterval time.Duration
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(service *service.PodcastService, registry *broadcast.Registry, pingInterval time.Duration) *StreamHandler {
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &StreamHandler{service: service, registry: registry, pingInterval: pingInterval}
}

// sseObserver bridges registry deliveries onto the handler goroutine. Send
// fails once the stream is closed, which makes the registry drop us.
type sseObserver struct {
	ch   chan *models.Task
	done chan struct{}
	once sync.Once
}

func newSSEObserver() *sseObserver {
	return &sseObserver{
		ch:   make(chan *models.Task),
		done: make(chan struct{}),
	}
}

func (o *sseObserver) Send(t *models.Task) error {
	select {
	case o.ch <- t:
		return nil
	case <-o.done:
		return errors.New("stream closed")
	}
}

func (o *sseObserver) close() {
	o.once.Do(func() { close(o.done) })
}

// Stream subscribes the client to a task's snapshots. The first event is
// the current snapshot; the connection closes after a terminal snapshot or
// when the client goes away. Pings keep intermediaries from idling out the
// connection.
// GET /api/v1/podcasts/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.service.GetTask(id); err != nil {
		if err == store.ErrTaskNotFound {
			response.NotFound(c, "Task not found")
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	obs := newSSEObserver()
	sub := h.registry.Subscribe(id, obs)
	defer h.registry.Unsubscribe(sub)
	defer obs.close()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case snap := <-obs.ch:
			c.SSEvent("status", snap)
			return !snap.Terminal()
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-clientGone:
			return false
		}
	})
}

package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/podlab/podcast-backend-go/internal/models"
	"github.com/podlab/podcast-backend-go/internal/pipeline"
	"github.com/podlab/podcast-backend-go/internal/repository"
	"github.com/podlab/podcast-backend-go/internal/stages"
	"github.com/podlab/podcast-backend-go/internal/store"
)

// DefaultTopology is the fixed stage order every podcast task runs:
// fetch -> summarize -> synthesize -> render.
func DefaultTopology() []store.StageSpec {
	return []store.StageSpec{
		{Kind: "fetch", Name: "Transcript Fetcher", Output: "transcript"},
		{Kind: "summarize", Name: "Summary Writer", Output: "summary"},
		{Kind: "synthesize", Name: "Dialogue Director", Output: "dialogue_script"},
		{Kind: "render", Name: "Audio Renderer", Output: "audio"},
	}
}

// AgentTable maps agent-runtime names onto default-topology stage ids.
func AgentTable() map[string]string {
	return map[string]string{
		stages.AgentName: "synthesize",
	}
}

// PodcastService glues submissions to the pipeline: it creates the task,
// launches the sequencer, archives completed episodes and evicts old state.
type PodcastService struct {
	store    *store.TaskStore
	seq      *pipeline.Sequencer
	episodes *repository.EpisodeRepository // nil disables archiving
	runners  []pipeline.Runner
	taskTTL  time.Duration
}

// NewPodcastService wires the service. runners must match DefaultTopology.
func NewPodcastService(taskStore *store.TaskStore, seq *pipeline.Sequencer, episodes *repository.EpisodeRepository, runners []pipeline.Runner, taskTTL time.Duration) *PodcastService {
	return &PodcastService{
		store:    taskStore,
		seq:      seq,
		episodes: episodes,
		runners:  runners,
		taskTTL:  taskTTL,
	}
}

// CreatePodcast creates a task for the source URL and starts its pipeline
// in the background. The returned snapshot is the freshly queued task.
func (s *PodcastService) CreatePodcast(sourceURL string) (*models.Task, error) {
	task, err := s.store.Create(DefaultTopology())
	if err != nil {
		return nil, err
	}

	go s.run(task.ID, sourceURL)

	return task, nil
}

func (s *PodcastService) run(taskID, sourceURL string) {
	log.Printf("Starting pipeline for task %s (source: %s)", taskID, sourceURL)

	s.seq.Run(context.Background(), taskID, s.runners, pipeline.StageInput{SourceURL: sourceURL})

	snap, err := s.store.Get(taskID)
	if err != nil {
		log.Printf("Task %s evicted before archiving", taskID)
		return
	}

	switch snap.Status {
	case models.TaskStatusCompleted:
		log.Printf("Pipeline completed for task %s", taskID)
		s.archive(snap, sourceURL)
	case models.TaskStatusFailed:
		log.Printf("Pipeline failed for task %s: %s", taskID, snap.ErrorMessage)
	}
}

// archive writes the completed result to the episode library. Archive
// failures are logged, never surfaced to the task: it is already terminal.
func (s *PodcastService) archive(snap *models.Task, sourceURL string) {
	if s.episodes == nil || snap.Result == nil {
		return
	}
	ep := &models.Episode{
		ID:        uuid.NewString(),
		TaskID:    snap.ID,
		SourceURL: sourceURL,
		Summary:   snap.Result.SummaryText,
		AudioURL:  snap.Result.OutputURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.episodes.Create(ep); err != nil {
		log.Printf("Failed to archive episode for task %s: %v", snap.ID, err)
	}
}

// GetTask returns the task's current snapshot.
func (s *PodcastService) GetTask(id string) (*models.Task, error) {
	return s.store.Get(id)
}

// ListCompleted returns completed tasks, newest first.
func (s *PodcastService) ListCompleted(limit, offset int) []*models.Task {
	return s.store.ListCompleted(limit, offset)
}

// ListEpisodes returns archived episodes, newest first.
func (s *PodcastService) ListEpisodes(limit, offset int) ([]*models.Episode, error) {
	return s.episodes.List(limit, offset)
}

// GetEpisode returns one archived episode.
func (s *PodcastService) GetEpisode(id string) (*models.Episode, error) {
	return s.episodes.GetByID(id)
}

// DeleteEpisode removes one archived episode.
func (s *PodcastService) DeleteEpisode(id string) error {
	return s.episodes.Delete(id)
}

// EvictNow runs one eviction sweep immediately and returns how many terminal
// tasks were removed.
func (s *PodcastService) EvictNow() int {
	return s.store.EvictTerminalBefore(time.Now().Add(-s.taskTTL))
}

// StartEviction sweeps terminal tasks older than the TTL on a ticker until
// ctx is cancelled.
func (s *PodcastService) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.store.EvictTerminalBefore(time.Now().Add(-s.taskTTL)); n > 0 {
					log.Printf("Evicted %d finished tasks", n)
				}
			}
		}
	}()
}

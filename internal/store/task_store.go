package store

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/podlab/podcast-backend-go/internal/models"
)

// ErrTaskNotFound is returned when a task id has no entry in the store.
var ErrTaskNotFound = errors.New("task not found")

// maxLogMessageLen caps stored stage log messages to bound memory.
const maxLogMessageLen = 200

// Publisher receives the task's full snapshot after every mutation.
// Snapshots are deep clones and are published while the task's lock is
// still held, so delivery order matches mutation order per task id.
type Publisher interface {
	Publish(taskID string, snapshot *models.Task)
}

// StageSpec describes one step of a task's pipeline topology.
type StageSpec struct {
	Kind   string // which stage function this step runs
	Name   string // human-readable label
	Output string // data kind the step produces, labels the outbound flow
}

// taskEntry pairs a task with its own mutex. Mutations on different task
// ids never contend with each other.
type taskEntry struct {
	mu   sync.Mutex
	task *models.Task
}

// TaskStore is the authoritative in-memory state of every task. The map is
// guarded by an RWMutex for entry insert/delete; field mutations serialize
// on the per-task mutex created at Create.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]*taskEntry
	publisher Publisher
	maxLimit  int
}

// NewTaskStore creates a TaskStore. publisher may be nil (no broadcast).
// maxListLimit clamps ListCompleted page sizes.
func NewTaskStore(publisher Publisher, maxListLimit int) *TaskStore {
	if maxListLimit <= 0 {
		maxListLimit = 100
	}
	return &TaskStore{
		tasks:     make(map[string]*taskEntry),
		publisher: publisher,
		maxLimit:  maxListLimit,
	}
}

// Create allocates a task from the supplied stage topology and builds the
// matching data-flow edges between adjacent stages. The topology is fixed
// for the task's lifetime.
func (s *TaskStore) Create(topology []StageSpec) (*models.Task, error) {
	if len(topology) == 0 {
		return nil, fmt.Errorf("empty stage topology")
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.NewString(),
		Status:    models.TaskStatusQueued,
		StartTime: now,
		Stages:    make([]models.Stage, 0, len(topology)),
		DataFlows: make([]models.DataFlow, 0, len(topology)-1),
		Timeline:  make([]models.TimelineEvent, 0, 8),
	}

	seen := make(map[string]int, len(topology))
	for _, spec := range topology {
		id := spec.Kind
		if n := seen[spec.Kind]; n > 0 {
			id = fmt.Sprintf("%s-%d", spec.Kind, n+1)
		}
		seen[spec.Kind]++
		task.Stages = append(task.Stages, models.Stage{
			ID:     id,
			Name:   spec.Name,
			Kind:   spec.Kind,
			Status: models.StageStatusPending,
			Logs:   []models.StageLog{},
		})
	}
	for i := 0; i < len(task.Stages)-1; i++ {
		from, to := task.Stages[i], task.Stages[i+1]
		task.DataFlows = append(task.DataFlows, models.DataFlow{
			ID:          from.ID + "-" + to.ID,
			FromStageID: from.ID,
			ToStageID:   to.ID,
			DataKind:    topology[i].Output,
			Status:      models.FlowStatusPending,
		})
	}

	task.Timeline = append(task.Timeline, models.TimelineEvent{
		Timestamp: now,
		EventKind: models.EventTaskCreated,
		Message:   fmt.Sprintf("task created with %d stages", len(task.Stages)),
	})

	entry := &taskEntry{task: task}

	s.mu.Lock()
	s.tasks[task.ID] = entry
	s.mu.Unlock()

	entry.mu.Lock()
	snap := task.Clone()
	s.publish(task.ID, snap)
	entry.mu.Unlock()

	return snap, nil
}

// Get returns a deep-cloned snapshot of the task.
func (s *TaskStore) Get(id string) (*models.Task, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task.Clone(), nil
}

// UpdateOverallStatus sets the task-level status and, when provided, overall
// progress (pass a negative progress to leave it unchanged) and the current
// stage id (empty string leaves it unchanged).
func (s *TaskStore) UpdateOverallStatus(id string, status models.TaskStatus, progress int, currentStageID string) error {
	return s.mutate(id, func(t *models.Task) bool {
		t.Status = status
		if progress >= 0 {
			t.OverallProgress = clampProgress(progress)
		}
		if currentStageID != "" {
			t.CurrentStageID = currentStageID
		}
		t.Timeline = append(t.Timeline, models.TimelineEvent{
			Timestamp: time.Now().UTC(),
			EventKind: models.EventProcessingUpdate,
			Message:   fmt.Sprintf("status %s, progress %d%%", status, t.OverallProgress),
			StageID:   t.CurrentStageID,
		})
		return true
	})
}

// UpdateStageStatus applies a status change to one stage. An unknown stage
// id is logged and ignored: late or duplicate events from asynchronous
// stage execution must not crash the pipeline.
func (s *TaskStore) UpdateStageStatus(id, stageID string, status models.StageStatus, progress int, startTime, endTime *time.Time) error {
	return s.mutate(id, func(t *models.Task) bool {
		stage := t.StageByID(stageID)
		if stage == nil {
			log.Printf("store: task %s has no stage %q, dropping status update", id, stageID)
			return false
		}
		stage.Status = status
		if progress >= 0 {
			stage.Progress = clampProgress(progress)
		}
		if startTime != nil {
			stage.StartTime = startTime
		}
		if endTime != nil {
			stage.EndTime = endTime
		}
		t.Timeline = append(t.Timeline, models.TimelineEvent{
			Timestamp: time.Now().UTC(),
			EventKind: models.AgentEventKind(status),
			Message:   fmt.Sprintf("stage %s is %s (%d%%)", stage.Name, status, stage.Progress),
			StageID:   stageID,
		})
		return true
	})
}

// AppendStageLog attaches a log line to a stage, truncating oversized
// messages to cap memory.
func (s *TaskStore) AppendStageLog(id, stageID, level, message string) error {
	if len(message) > maxLogMessageLen {
		message = message[:maxLogMessageLen]
	}
	return s.mutate(id, func(t *models.Task) bool {
		stage := t.StageByID(stageID)
		if stage == nil {
			log.Printf("store: task %s has no stage %q, dropping log line", id, stageID)
			return false
		}
		now := time.Now().UTC()
		stage.Logs = append(stage.Logs, models.StageLog{
			Timestamp: now,
			Level:     level,
			Message:   message,
		})
		t.Timeline = append(t.Timeline, models.TimelineEvent{
			Timestamp: now,
			EventKind: models.EventAgentLog,
			Message:   message,
			StageID:   stageID,
		})
		return true
	})
}

// UpdateDataFlowStatus updates the handoff edge matching both endpoints.
func (s *TaskStore) UpdateDataFlowStatus(id, fromStageID, toStageID string, status models.FlowStatus) error {
	return s.mutate(id, func(t *models.Task) bool {
		flow := t.FlowByEndpoints(fromStageID, toStageID)
		if flow == nil {
			log.Printf("store: task %s has no data flow %s -> %s, dropping update", id, fromStageID, toStageID)
			return false
		}
		flow.Status = status
		t.Timeline = append(t.Timeline, models.TimelineEvent{
			Timestamp: time.Now().UTC(),
			EventKind: models.EventDataFlowUpdate,
			Message:   fmt.Sprintf("data flow %s is %s", flow.ID, status),
			StageID:   fromStageID,
		})
		return true
	})
}

// Complete marks the task terminal with its result. Progress jumps to 100.
// Calling Complete on an already-terminal task is a no-op.
func (s *TaskStore) Complete(id string, result models.TaskResult) error {
	entry, ok := s.entry(id)
	if !ok {
		return ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	entry.task.Status = models.TaskStatusCompleted
	entry.task.OverallProgress = 100
	entry.task.EstimatedEndTime = &now
	entry.task.Result = &result
	entry.task.Timeline = append(entry.task.Timeline, models.TimelineEvent{
		Timestamp: now,
		EventKind: models.EventTaskCompleted,
		Message:   "task completed",
	})
	s.publish(id, entry.task.Clone())
	return nil
}

// Fail marks the task terminal with an error message. The last recorded
// progress is preserved so observers can tell how far the task got.
// Calling Fail on an already-terminal task is a no-op.
func (s *TaskStore) Fail(id, errorMessage string) error {
	entry, ok := s.entry(id)
	if !ok {
		return ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	entry.task.Status = models.TaskStatusFailed
	entry.task.EstimatedEndTime = &now
	entry.task.ErrorMessage = errorMessage
	entry.task.Timeline = append(entry.task.Timeline, models.TimelineEvent{
		Timestamp: now,
		EventKind: models.EventTaskFailed,
		Message:   errorMessage,
	})
	s.publish(id, entry.task.Clone())
	return nil
}

// ListCompleted returns completed tasks sorted by completion time, newest
// first. limit is clamped to the configured maximum; an offset past the end
// yields an empty page.
func (s *TaskStore) ListCompleted(limit, offset int) []*models.Task {
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	completed := make([]*models.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.task.Status == models.TaskStatusCompleted {
			completed = append(completed, e.task.Clone())
		}
		e.mu.Unlock()
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].EstimatedEndTime.After(*completed[j].EstimatedEndTime)
	})

	if offset >= len(completed) {
		return []*models.Task{}
	}
	completed = completed[offset:]
	if limit >= 0 && len(completed) > limit {
		completed = completed[:limit]
	}
	return completed
}

// EvictTerminalBefore removes terminal tasks that ended before the cutoff
// and returns how many were removed. Live tasks are never evicted.
func (s *TaskStore) EvictTerminalBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.tasks {
		e.mu.Lock()
		evict := e.task.Terminal() && e.task.EstimatedEndTime != nil && e.task.EstimatedEndTime.Before(cutoff)
		e.mu.Unlock()
		if evict {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

func (s *TaskStore) entry(id string) (*taskEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[id]
	return e, ok
}

// mutate runs fn under the task's lock and publishes a snapshot when fn
// reports a change. Terminal tasks are fenced: once Completed or Failed,
// late mutations from abandoned stage work are dropped.
func (s *TaskStore) mutate(id string, fn func(*models.Task) bool) error {
	entry, ok := s.entry(id)
	if !ok {
		return ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.Terminal() {
		log.Printf("store: task %s is terminal, dropping late mutation", id)
		return nil
	}
	if fn(entry.task) {
		s.publish(id, entry.task.Clone())
	}
	return nil
}

func (s *TaskStore) publish(id string, snapshot *models.Task) {
	if s.publisher != nil {
		s.publisher.Publish(id, snapshot)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/podlab/podcast-backend-go/internal/models"
	"github.com/podlab/podcast-backend-go/internal/store"
)

// DefaultDeadline bounds one full pipeline run.
const DefaultDeadline = 300 * time.Second

// summaryMaxLen caps the derived result summary.
const summaryMaxLen = 200

// Sequencer drives one task through its fixed stage list to completion or
// failure under a single deadline. Any stage error fails the whole task;
// stages are never retried here.
type Sequencer struct {
	store      *store.TaskStore
	deadline   time.Duration
	agentTable map[string]string // agent name -> stage id, for streamed stages
	resultKey  string            // state-delta key that carries a stage result
}

// NewSequencer creates a Sequencer. deadline <= 0 selects the default.
func NewSequencer(taskStore *store.TaskStore, deadline time.Duration, agentTable map[string]string, resultKey string) *Sequencer {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Sequencer{
		store:      taskStore,
		deadline:   deadline,
		agentTable: agentTable,
		resultKey:  resultKey,
	}
}

type stageResult struct {
	out StageOutput
	err error
}

// Run executes the task's stages in topology order. runners must match the
// task's stage list one-to-one. Run blocks until the task is terminal.
func (s *Sequencer) Run(ctx context.Context, taskID string, runners []Runner, in StageInput) {
	snap, err := s.store.Get(taskID)
	if err != nil {
		log.Printf("sequencer: task %s vanished before start: %v", taskID, err)
		return
	}
	if len(runners) != len(snap.Stages) {
		s.store.Fail(taskID, fmt.Sprintf("pipeline misconfigured: %d runners for %d stages", len(runners), len(snap.Stages)))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	timeoutMsg := fmt.Sprintf("pipeline deadline exceeded after %s", s.deadline)

	s.store.UpdateOverallStatus(taskID, models.TaskStatusProcessing, 0, snap.Stages[0].ID)

	var lastText string
	var audioURL string

	for i := range snap.Stages {
		stage := snap.Stages[i]

		if i > 0 {
			prev := snap.Stages[i-1]
			s.store.UpdateDataFlowStatus(taskID, prev.ID, stage.ID, models.FlowStatusTransferring)
			s.store.UpdateDataFlowStatus(taskID, prev.ID, stage.ID, models.FlowStatusCompleted)
		}

		now := time.Now().UTC()
		s.store.UpdateStageStatus(taskID, stage.ID, models.StageStatusRunning, 0, &now, nil)
		s.store.UpdateOverallStatus(taskID, models.TaskStatusProcessing, -1, stage.ID)

		out, err := s.invoke(ctx, taskID, stage, runners[i], in)
		if err != nil {
			end := time.Now().UTC()
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.store.UpdateStageStatus(taskID, stage.ID, models.StageStatusError, -1, nil, &end)
				s.store.Fail(taskID, timeoutMsg)
				return
			}
			s.store.UpdateStageStatus(taskID, stage.ID, models.StageStatusError, -1, nil, &end)
			s.store.AppendStageLog(taskID, stage.ID, "error", err.Error())
			s.store.Fail(taskID, err.Error())
			return
		}

		end := time.Now().UTC()
		s.store.UpdateStageStatus(taskID, stage.ID, models.StageStatusCompleted, 100, nil, &end)
		s.store.UpdateOverallStatus(taskID, models.TaskStatusProcessing, (i+1)*95/len(snap.Stages), stage.ID)

		if out.Payload != "" {
			lastText = out.Payload
		}
		if out.AudioURL != "" {
			audioURL = out.AudioURL
		}
		in = StageInput{SourceURL: in.SourceURL, Payload: out.Payload, Meta: out.Meta}
	}

	// Every stage succeeded, but success without an audio artifact is still
	// a failure, not something to accept silently.
	if audioURL == "" {
		s.store.Fail(taskID, "pipeline finished without producing an audio artifact")
		return
	}

	s.store.Complete(taskID, models.TaskResult{
		SummaryText: summarize(lastText),
		OutputURL:   audioURL,
	})
}

// invoke runs one stage, preferring the streaming contract when the runner
// offers it. Panics and normalizer errors are converted to stage failures;
// nothing escapes this boundary.
func (s *Sequencer) invoke(ctx context.Context, taskID string, stage models.Stage, r Runner, in StageInput) (StageOutput, error) {
	if streamer, ok := r.(Streamer); ok {
		return s.consumeStream(ctx, taskID, stage, streamer, in)
	}

	rep := &storeReporter{store: s.store, taskID: taskID, stageID: stage.ID}
	resCh := make(chan stageResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				resCh <- stageResult{err: fmt.Errorf("stage %s panicked: %v", stage.Kind, p)}
			}
		}()
		out, err := r.Run(ctx, in, rep)
		resCh <- stageResult{out: out, err: err}
	}()

	select {
	case res := <-resCh:
		return res.out, res.err
	case <-ctx.Done():
		// The stage goroutine is abandoned if Run ignores ctx; the store's
		// terminal fencing keeps any late mutations from dirtying the task.
		return StageOutput{}, ctx.Err()
	}
}

// consumeStream drains a streamed stage through the Normalizer, applying
// progress to the store and returning when the stage's result arrives.
func (s *Sequencer) consumeStream(ctx context.Context, taskID string, stage models.Stage, streamer Streamer, in StageInput) (StageOutput, error) {
	events, err := streamer.Stream(ctx, in)
	if err != nil {
		return StageOutput{}, err
	}

	norm := NewNormalizer(s.agentTable, stage.ID, s.resultKey)

	for {
		select {
		case <-ctx.Done():
			return StageOutput{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return StageOutput{}, fmt.Errorf("stage %s event stream ended without a result", stage.Kind)
			}
			for _, ne := range norm.Normalize(ev) {
				switch ne.Kind {
				case NormalizedProgress:
					s.store.UpdateStageStatus(taskID, ne.StageID, models.StageStatusRunning, ne.Progress, nil, nil)
				case NormalizedResult:
					if ne.StageID != stage.ID {
						log.Printf("sequencer: task %s got a result for stage %s while running %s", taskID, ne.StageID, stage.ID)
						continue
					}
					return StageOutput{Payload: ne.Value}, nil
				case NormalizedError:
					return StageOutput{}, errors.New(ne.Message)
				}
			}
		}
	}
}

// storeReporter adapts a stage's progress/log calls onto store mutations.
type storeReporter struct {
	store   *store.TaskStore
	taskID  string
	stageID string
}

func (r *storeReporter) Progress(percent int) {
	r.store.UpdateStageStatus(r.taskID, r.stageID, models.StageStatusRunning, percent, nil, nil)
}

func (r *storeReporter) Log(level, message string) {
	r.store.AppendStageLog(r.taskID, r.stageID, level, message)
}

// summarize derives the short human-readable result summary from the
// synthesized dialogue: its first non-empty line, length-capped.
func summarize(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > summaryMaxLen {
			return line[:summaryMaxLen]
		}
		return line
	}
	return "episode generated"
}

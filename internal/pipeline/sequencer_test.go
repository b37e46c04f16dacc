package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/podlab/podcast-backend-go/internal/models"
	"github.com/podlab/podcast-backend-go/internal/store"
)

func fullTopology() []store.StageSpec {
	return []store.StageSpec{
		{Kind: "fetch", Name: "Transcript Fetcher", Output: "transcript"},
		{Kind: "summarize", Name: "Summary Writer", Output: "summary"},
		{Kind: "synthesize", Name: "Dialogue Director", Output: "dialogue_script"},
		{Kind: "render", Name: "Audio Renderer", Output: "audio"},
	}
}

// fakeStage is a scriptable Runner.
type fakeStage struct {
	kind     string
	out      StageOutput
	err      error
	panicMsg string
	block    bool // ignore everything and wait for ctx

	gotInput StageInput
}

func (f *fakeStage) Kind() string { return f.kind }

func (f *fakeStage) Run(ctx context.Context, in StageInput, rep Reporter) (StageOutput, error) {
	f.gotInput = in
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return StageOutput{}, ctx.Err()
	}
	rep.Progress(50)
	return f.out, f.err
}

func okStages() []Runner {
	return []Runner{
		&fakeStage{kind: "fetch", out: StageOutput{Payload: "raw transcript"}},
		&fakeStage{kind: "summarize", out: StageOutput{Payload: "- point one"}},
		&fakeStage{kind: "synthesize", out: StageOutput{Payload: "HOST A: welcome back\nHOST B: glad to be here"}},
		&fakeStage{kind: "render", out: StageOutput{AudioURL: "/audio/ep.mp3"}},
	}
}

func newTestSequencer(t *testing.T, deadline time.Duration) (*Sequencer, *store.TaskStore, string) {
	t.Helper()
	s := store.NewTaskStore(nil, 100)
	task, err := s.Create(fullTopology())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seq := NewSequencer(s, deadline, map[string]string{"dialogue_director": "synthesize"}, "dialogue_script")
	return seq, s, task.ID
}

func TestRunCompletesTask(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)
	runners := okStages()

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", snap.Status, snap.ErrorMessage)
	}
	if snap.OverallProgress != 100 {
		t.Errorf("progress = %d, want 100", snap.OverallProgress)
	}
	if snap.Result == nil || snap.Result.OutputURL != "/audio/ep.mp3" {
		t.Fatalf("result = %+v, want output url set", snap.Result)
	}
	if snap.Result.SummaryText != "HOST A: welcome back" {
		t.Errorf("summary = %q, want first dialogue line", snap.Result.SummaryText)
	}

	for _, st := range snap.Stages {
		if st.Status != models.StageStatusCompleted {
			t.Errorf("stage %s = %q, want completed", st.ID, st.Status)
		}
		if st.Progress != 100 {
			t.Errorf("stage %s progress = %d, want 100", st.ID, st.Progress)
		}
	}
	for _, f := range snap.DataFlows {
		if f.Status != models.FlowStatusCompleted {
			t.Errorf("flow %s = %q, want completed", f.ID, f.Status)
		}
	}

	// Outputs flow forward stage to stage.
	if got := runners[1].(*fakeStage).gotInput.Payload; got != "raw transcript" {
		t.Errorf("summarize input = %q, want fetch output", got)
	}
	if got := runners[3].(*fakeStage).gotInput.Payload; !strings.HasPrefix(got, "HOST A:") {
		t.Errorf("render input = %q, want synthesized script", got)
	}
}

func TestStageFailureFailsFast(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)
	runners := okStages()
	runners[2] = &fakeStage{kind: "synthesize", err: errors.New("blocked by safety filter")}

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if snap.ErrorMessage != "blocked by safety filter" {
		t.Errorf("error = %q, want the stage error verbatim", snap.ErrorMessage)
	}
	if snap.Stages[0].Status != models.StageStatusCompleted || snap.Stages[1].Status != models.StageStatusCompleted {
		t.Error("upstream stages should keep their completed state")
	}
	if snap.Stages[2].Status != models.StageStatusError {
		t.Errorf("synthesize = %q, want error", snap.Stages[2].Status)
	}
	if snap.Stages[3].Status != models.StageStatusPending {
		t.Errorf("render = %q, want pending (never started)", snap.Stages[3].Status)
	}
}

func TestDeadlineFailsTask(t *testing.T) {
	seq, s, id := newTestSequencer(t, 50*time.Millisecond)
	runners := okStages()
	runners[1] = &fakeStage{kind: "summarize", block: true}

	start := time.Now()
	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("run took %v, want deadline + small epsilon", elapsed)
	}

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "deadline exceeded") {
		t.Errorf("error = %q, want a timeout-specific message", snap.ErrorMessage)
	}
	if snap.Stages[0].Status != models.StageStatusCompleted {
		t.Error("completed stages must keep their state after a timeout")
	}
}

func TestPanicBecomesStageFailure(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)
	runners := okStages()
	runners[0] = &fakeStage{kind: "fetch", panicMsg: "nil transcript pointer"}

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "panicked") {
		t.Errorf("error = %q, want the panic captured", snap.ErrorMessage)
	}
}

func TestMissingAudioArtifactIsFailure(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)
	runners := okStages()
	runners[3] = &fakeStage{kind: "render", out: StageOutput{Payload: "all good, no file though"}}

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed when no artifact was produced", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "audio artifact") {
		t.Errorf("error = %q, want missing-artifact message", snap.ErrorMessage)
	}
}

func TestRunnerCountMismatchFails(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)

	seq.Run(context.Background(), id, okStages()[:2], StageInput{})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed on misconfiguration", snap.Status)
	}
}

// streamingStage drives the normalizer path.
type streamingStage struct {
	fakeStage
	events []AgentEvent
}

func (f *streamingStage) Stream(ctx context.Context, in StageInput) (<-chan AgentEvent, error) {
	ch := make(chan AgentEvent)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func TestStreamedStageFlowsThroughNormalizer(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)

	script := "HOST A: hello\nHOST B: hi"
	runners := okStages()
	runners[2] = &streamingStage{
		fakeStage: fakeStage{kind: "synthesize"},
		events: []AgentEvent{
			{Agent: "dialogue_director", Kind: AgentEventContentDelta, Payload: "drafting"},
			{Agent: "dialogue_director", Kind: AgentEventToolCall, Payload: "outline_reader"},
			{Agent: "dialogue_director", Kind: AgentEventStateDelta, Key: "dialogue_script", Payload: script},
		},
	}

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", snap.Status, snap.ErrorMessage)
	}
	if got := runners[3].(*fakeStage).gotInput.Payload; got != script {
		t.Errorf("render input = %q, want the streamed script", got)
	}
}

func TestStreamedStageErrorFailsTask(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)

	runners := okStages()
	runners[2] = &streamingStage{
		fakeStage: fakeStage{kind: "synthesize"},
		events: []AgentEvent{
			{Agent: "dialogue_director", Kind: AgentEventStateDelta, Key: "error", Payload: "model refused"},
		},
	}

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed || snap.ErrorMessage != "model refused" {
		t.Fatalf("status = %q error = %q, want failed with the agent's message", snap.Status, snap.ErrorMessage)
	}
}

func TestStreamEndingWithoutResultFailsTask(t *testing.T) {
	seq, s, id := newTestSequencer(t, time.Minute)

	runners := okStages()
	runners[2] = &streamingStage{
		fakeStage: fakeStage{kind: "synthesize"},
		events: []AgentEvent{
			{Agent: "dialogue_director", Kind: AgentEventContentDelta, Payload: "drafting"},
		},
	}

	seq.Run(context.Background(), id, runners, StageInput{SourceURL: "https://example.com/talk"})

	snap, _ := s.Get(id)
	if snap.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed when the stream ends without a result", snap.Status)
	}
}

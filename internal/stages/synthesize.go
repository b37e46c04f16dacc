package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/podlab/podcast-backend-go/internal/pipeline"
)

// AgentName tags the synthesize stage's events for the normalizer table.
const AgentName = "dialogue_director"

// ResultKey is the state-delta key carrying the finished script.
const ResultKey = "dialogue_script"

const synthesizeSystemPrompt = "You write a natural two-host podcast dialogue from an outline. " +
	"Alternate lines prefixed HOST A: and HOST B:, conversational tone, no stage directions."

// SynthesizeStage turns the summary into a two-host dialogue script. It is
// driven by an agent runtime, so alongside the plain Run contract it streams
// agent events that the sequencer consumes through the normalizer.
type SynthesizeStage struct {
	LLM *LLMClient
}

func (s *SynthesizeStage) Kind() string { return "synthesize" }

func (s *SynthesizeStage) Run(ctx context.Context, in pipeline.StageInput, rep pipeline.Reporter) (pipeline.StageOutput, error) {
	script, err := s.synthesize(ctx, in)
	if err != nil {
		return pipeline.StageOutput{}, err
	}
	rep.Progress(90)
	return pipeline.StageOutput{Payload: script}, nil
}

// Stream emits the agent runtime's event shapes: content deltas while the
// dialogue is drafted, a tool call for script formatting, and a final state
// delta carrying the script. Failures travel over the stream too; nothing
// is raised past the channel.
func (s *SynthesizeStage) Stream(ctx context.Context, in pipeline.StageInput) (<-chan pipeline.AgentEvent, error) {
	if in.Payload == "" {
		return nil, fmt.Errorf("no summary to synthesize from")
	}

	ch := make(chan pipeline.AgentEvent)
	go func() {
		defer close(ch)

		emit := func(ev pipeline.AgentEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(pipeline.AgentEvent{Agent: AgentName, Kind: pipeline.AgentEventContentDelta, Payload: "drafting dialogue"}) {
			return
		}
		if !emit(pipeline.AgentEvent{Agent: AgentName, Kind: pipeline.AgentEventToolCall, Payload: "outline_reader"}) {
			return
		}

		script, err := s.synthesize(ctx, in)
		if err != nil {
			emit(pipeline.AgentEvent{Agent: AgentName, Kind: pipeline.AgentEventStateDelta, Key: "error", Payload: err.Error()})
			return
		}

		if !emit(pipeline.AgentEvent{Agent: AgentName, Kind: pipeline.AgentEventToolCall, Payload: "script_formatter"}) {
			return
		}
		emit(pipeline.AgentEvent{Agent: AgentName, Kind: pipeline.AgentEventStateDelta, Key: ResultKey, Payload: script})
	}()
	return ch, nil
}

func (s *SynthesizeStage) synthesize(ctx context.Context, in pipeline.StageInput) (string, error) {
	script, err := s.LLM.Complete(ctx, synthesizeSystemPrompt, in.Payload)
	if err != nil {
		return "", fmt.Errorf("dialogue synthesis failed: %w", err)
	}
	if !strings.Contains(script, "HOST A:") {
		return "", fmt.Errorf("synthesized script has no dialogue lines")
	}
	return script, nil
}

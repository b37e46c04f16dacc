package stages

import (
	"context"
	"fmt"

	"github.com/podlab/podcast-backend-go/internal/pipeline"
)

const summarizeSystemPrompt = "You condense talk transcripts into a tight outline of the key points, keeping concrete facts and names."

// SummarizeStage turns the fetched transcript into a key-point summary.
type SummarizeStage struct {
	LLM *LLMClient
}

func (s *SummarizeStage) Kind() string { return "summarize" }

func (s *SummarizeStage) Run(ctx context.Context, in pipeline.StageInput, rep pipeline.Reporter) (pipeline.StageOutput, error) {
	if in.Payload == "" {
		return pipeline.StageOutput{}, fmt.Errorf("no transcript to summarize")
	}

	rep.Log("info", "summarizing transcript")
	rep.Progress(20)

	summary, err := s.LLM.Complete(ctx, summarizeSystemPrompt, in.Payload)
	if err != nil {
		return pipeline.StageOutput{}, fmt.Errorf("summarization failed: %w", err)
	}

	rep.Progress(90)
	return pipeline.StageOutput{Payload: summary}, nil
}

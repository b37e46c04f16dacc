package stages

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/podlab/podcast-backend-go/internal/pipeline"
)

// maxTranscriptBytes bounds how much transcript text one task can pull in.
const maxTranscriptBytes = 4 << 20

// TranscriptStage fetches the source's transcript text from the configured
// transcript service.
type TranscriptStage struct {
	Client  *http.Client
	BaseURL string
}

func (s *TranscriptStage) Kind() string { return "fetch" }

func (s *TranscriptStage) Run(ctx context.Context, in pipeline.StageInput, rep pipeline.Reporter) (pipeline.StageOutput, error) {
	endpoint := fmt.Sprintf("%s/transcript?url=%s", s.BaseURL, url.QueryEscape(in.SourceURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pipeline.StageOutput{}, fmt.Errorf("failed to build transcript request: %w", err)
	}

	rep.Log("info", "fetching transcript for "+in.SourceURL)
	rep.Progress(10)

	resp, err := s.Client.Do(req)
	if err != nil {
		return pipeline.StageOutput{}, fmt.Errorf("transcript service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.StageOutput{}, fmt.Errorf("transcript service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBytes))
	if err != nil {
		return pipeline.StageOutput{}, fmt.Errorf("failed to read transcript: %w", err)
	}
	if len(body) == 0 {
		return pipeline.StageOutput{}, fmt.Errorf("source has no transcript")
	}

	rep.Progress(90)
	rep.Log("info", fmt.Sprintf("fetched %d bytes of transcript", len(body)))

	return pipeline.StageOutput{Payload: string(body)}, nil
}

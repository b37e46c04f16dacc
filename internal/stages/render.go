package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/podlab/podcast-backend-go/internal/artifacts"
	"github.com/podlab/podcast-backend-go/internal/pipeline"
)

// maxClipBytes bounds one synthesized speech clip.
const maxClipBytes = 16 << 20

// RenderStage turns the dialogue script into a single MP3 via the TTS
// service, one clip per line, and stores it as an ephemeral artifact.
type RenderStage struct {
	Client     *http.Client
	BaseURL    string
	VoiceA     string
	VoiceB     string
	Artifacts  *artifacts.Store
	PublicPath string // URL prefix artifacts are served under, e.g. /audio
}

func (s *RenderStage) Kind() string { return "render" }

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *RenderStage) Run(ctx context.Context, in pipeline.StageInput, rep pipeline.Reporter) (pipeline.StageOutput, error) {
	lines := dialogueLines(in.Payload)
	if len(lines) == 0 {
		return pipeline.StageOutput{}, fmt.Errorf("script has no renderable dialogue lines")
	}

	rep.Log("info", fmt.Sprintf("rendering %d dialogue lines", len(lines)))

	var audio bytes.Buffer
	for i, line := range lines {
		voice := s.VoiceA
		if strings.HasPrefix(line, "HOST B:") {
			voice = s.VoiceB
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "HOST A:"), "HOST B:"))

		clip, err := s.speak(ctx, text, voice)
		if err != nil {
			return pipeline.StageOutput{}, fmt.Errorf("tts failed on line %d: %w", i+1, err)
		}
		audio.Write(clip)
		rep.Progress((i + 1) * 95 / len(lines))
	}

	name, err := s.Artifacts.Put(audio.Bytes(), ".mp3")
	if err != nil {
		return pipeline.StageOutput{}, fmt.Errorf("failed to store rendered audio: %w", err)
	}

	return pipeline.StageOutput{AudioURL: s.PublicPath + "/" + name}, nil
}

func (s *RenderStage) speak(ctx context.Context, text, voice string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v1/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts service returned %d", resp.StatusCode)
	}

	clip, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tts clip: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("tts returned an empty clip")
	}
	return clip, nil
}

// dialogueLines keeps only HOST-prefixed lines of the script.
func dialogueLines(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "HOST A:") || strings.HasPrefix(line, "HOST B:") {
			lines = append(lines, line)
		}
	}
	return lines
}

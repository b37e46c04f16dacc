package stages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/podlab/podcast-backend-go/internal/artifacts"
	"github.com/podlab/podcast-backend-go/internal/pipeline"
)

type nopReporter struct{}

func (nopReporter) Progress(int)      {}
func (nopReporter) Log(string, string) {}

func TestTranscriptStageRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript" {
			t.Errorf("path = %q, want /transcript", r.URL.Path)
		}
		if got := r.URL.Query().Get("url"); got != "https://example.com/talk" {
			t.Errorf("url param = %q", got)
		}
		w.Write([]byte("hello transcript"))
	}))
	defer srv.Close()

	stage := &TranscriptStage{Client: srv.Client(), BaseURL: srv.URL}
	out, err := stage.Run(context.Background(), pipeline.StageInput{SourceURL: "https://example.com/talk"}, nopReporter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Payload != "hello transcript" {
		t.Errorf("payload = %q", out.Payload)
	}
}

func TestTranscriptStageErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"service error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"empty transcript", func(w http.ResponseWriter, r *http.Request) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			stage := &TranscriptStage{Client: srv.Client(), BaseURL: srv.URL}
			if _, err := stage.Run(context.Background(), pipeline.StageInput{SourceURL: "https://example.com/talk"}, nopReporter{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func newFakeLLM(t *testing.T, reply string) (*httptest.Server, *LLMClient) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad chat request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: reply}}},
		})
	}))
	return srv, &LLMClient{Client: srv.Client(), BaseURL: srv.URL, Model: "test-model"}
}

func TestSummarizeStageRun(t *testing.T) {
	srv, llm := newFakeLLM(t, "- the key point")
	defer srv.Close()

	stage := &SummarizeStage{LLM: llm}
	out, err := stage.Run(context.Background(), pipeline.StageInput{Payload: "long transcript"}, nopReporter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Payload != "- the key point" {
		t.Errorf("payload = %q", out.Payload)
	}

	if _, err := stage.Run(context.Background(), pipeline.StageInput{}, nopReporter{}); err == nil {
		t.Fatal("expected error on empty transcript")
	}
}

func TestSynthesizeStageStream(t *testing.T) {
	script := "HOST A: welcome\nHOST B: thanks"
	srv, llm := newFakeLLM(t, script)
	defer srv.Close()

	stage := &SynthesizeStage{LLM: llm}
	events, err := stage.Stream(context.Background(), pipeline.StageInput{Payload: "- outline"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var collected []pipeline.AgentEvent
	for ev := range events {
		if ev.Agent != AgentName {
			t.Errorf("event agent = %q, want %q", ev.Agent, AgentName)
		}
		collected = append(collected, ev)
	}
	if len(collected) == 0 {
		t.Fatal("no events emitted")
	}

	last := collected[len(collected)-1]
	if last.Kind != pipeline.AgentEventStateDelta || last.Key != ResultKey || last.Payload != script {
		t.Errorf("final event = %+v, want the script as a state delta", last)
	}
}

func TestSynthesizeStageStreamReportsErrors(t *testing.T) {
	srv, llm := newFakeLLM(t, "a monologue with no host lines")
	defer srv.Close()

	stage := &SynthesizeStage{LLM: llm}
	events, err := stage.Stream(context.Background(), pipeline.StageInput{Payload: "- outline"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var last pipeline.AgentEvent
	for ev := range events {
		last = ev
	}
	if last.Kind != pipeline.AgentEventStateDelta || last.Key != "error" {
		t.Errorf("final event = %+v, want an error state delta", last)
	}
}

func TestRenderStageRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad tts request: %v", err)
		}
		w.Write([]byte("MP3" + req.Voice))
	}))
	defer srv.Close()

	store, err := artifacts.NewStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}

	stage := &RenderStage{
		Client:     srv.Client(),
		BaseURL:    srv.URL,
		VoiceA:     "alpha",
		VoiceB:     "beta",
		Artifacts:  store,
		PublicPath: "/audio",
	}

	out, err := stage.Run(context.Background(), pipeline.StageInput{
		Payload: "HOST A: hello\nnot a line\nHOST B: hi",
	}, nopReporter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.AudioURL, "/audio/") {
		t.Fatalf("audio url = %q", out.AudioURL)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), strings.TrimPrefix(out.AudioURL, "/audio/")))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "MP3alphaMP3beta" {
		t.Errorf("artifact contents = %q, want both voices concatenated", data)
	}
}

func TestRenderStageRejectsEmptyScript(t *testing.T) {
	stage := &RenderStage{}
	if _, err := stage.Run(context.Background(), pipeline.StageInput{Payload: "no dialogue here"}, nopReporter{}); err == nil {
		t.Fatal("expected error for script without dialogue lines")
	}
}

func TestDialogueLines(t *testing.T) {
	script := "intro text\nHOST A: one\n\n  HOST B: two\nHOST C: ignored"
	lines := dialogueLines(script)
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if lines[0] != "HOST A: one" || lines[1] != "HOST B: two" {
		t.Errorf("lines = %v", lines)
	}
}

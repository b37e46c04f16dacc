package pipeline

import "context"

// StageInput carries the work handed to a stage: the original source URL
// and the previous stage's output payload.
type StageInput struct {
	SourceURL string
	Payload   string
	Meta      map[string]string
}

// StageOutput is what a stage hands to its successor. AudioURL is set only
// by the rendering stage.
type StageOutput struct {
	Payload  string
	AudioURL string
	Meta     map[string]string
}

// Reporter lets a stage surface progress and log lines while it runs. Both
// calls are fire-and-forget.
type Reporter interface {
	Progress(percent int)
	Log(level, message string)
}

// Runner executes one pipeline stage to a single awaited result. Run must
// honor ctx cancellation; implementations that ignore it are abandoned on
// deadline expiry and fenced out by the store.
type Runner interface {
	Kind() string
	Run(ctx context.Context, in StageInput, rep Reporter) (StageOutput, error)
}

// Streamer is an optional stage contract: instead of one awaited result the
// stage emits a stream of agent-runtime events which the sequencer consumes
// through the Normalizer. The channel must be closed when the stage is done.
type Streamer interface {
	Stream(ctx context.Context, in StageInput) (<-chan AgentEvent, error)
}

// AgentEvent is the free-form event shape produced by an external agent
// runtime: tagged with an agent name and one of three kinds.
type AgentEvent struct {
	Agent   string // agent name, mapped to a stage id by the Normalizer
	Kind    AgentEventKind
	Key     string // state-delta output key, e.g. "dialogue_script"
	Payload string
}

// AgentEventKind tags the shape of an external runtime event.
type AgentEventKind string

const (
	AgentEventContentDelta AgentEventKind = "content_delta"
	AgentEventToolCall     AgentEventKind = "tool_call"
	AgentEventStateDelta   AgentEventKind = "state_delta"
)

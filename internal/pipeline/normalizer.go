package pipeline

import "log"

// Normalized event vocabulary consumed by the sequencer.
type NormalizedKind int

const (
	NormalizedProgress NormalizedKind = iota
	NormalizedResult
	NormalizedError
)

// NormalizedEvent is the sequencer's three-event vocabulary.
type NormalizedEvent struct {
	Kind     NormalizedKind
	StageID  string
	Progress int    // absolute percent, set for NormalizedProgress
	Value    string // stage result payload, set for NormalizedResult
	Message  string // error text, set for NormalizedError
}

const (
	// baselineProgress is applied when the first event for a stage arrives.
	baselineProgress = 5
	// toolCallStep is added per tool invocation.
	toolCallStep = 8
	// progressCeiling caps normalized progress; the jump to 100 is reserved
	// for genuine stage completion.
	progressCeiling = 95
	// errorKey marks a state delta carrying an agent-reported failure.
	errorKey = "error"
)

// Normalizer translates free-form agent-runtime events into the fixed
// {Progress, Result, Error} vocabulary. Unrecognized agent names map to a
// fallback stage id so no event silently disappears; malformed events are
// logged and swallowed, never propagated.
type Normalizer struct {
	agentToStage map[string]string
	fallback     string
	resultKey    string
	progress     map[string]int // current normalized percent per stage id
}

// NewNormalizer builds a Normalizer with a fixed agent-name lookup table,
// a fallback stage id for unknown agents, and the state-delta key that
// marks a stage's result.
func NewNormalizer(agentToStage map[string]string, fallbackStageID, resultKey string) *Normalizer {
	table := make(map[string]string, len(agentToStage))
	for k, v := range agentToStage {
		table[k] = v
	}
	return &Normalizer{
		agentToStage: table,
		fallback:     fallbackStageID,
		resultKey:    resultKey,
		progress:     make(map[string]int),
	}
}

// Normalize translates one external event. The returned slice is empty when
// the event carries nothing actionable (duplicate content deltas, malformed
// input, unrecognized state keys).
func (n *Normalizer) Normalize(ev AgentEvent) []NormalizedEvent {
	stageID, ok := n.agentToStage[ev.Agent]
	if !ok {
		stageID = n.fallback
	}

	switch ev.Kind {
	case AgentEventContentDelta:
		if _, started := n.progress[stageID]; started {
			return nil
		}
		n.progress[stageID] = baselineProgress
		return []NormalizedEvent{{Kind: NormalizedProgress, StageID: stageID, Progress: baselineProgress}}

	case AgentEventToolCall:
		p, started := n.progress[stageID]
		if !started {
			p = baselineProgress
		}
		p += toolCallStep
		if p > progressCeiling {
			p = progressCeiling
		}
		n.progress[stageID] = p
		return []NormalizedEvent{{Kind: NormalizedProgress, StageID: stageID, Progress: p}}

	case AgentEventStateDelta:
		if ev.Key == errorKey {
			msg := ev.Payload
			if msg == "" {
				msg = "agent reported an unspecified error"
			}
			return []NormalizedEvent{{Kind: NormalizedError, StageID: stageID, Message: msg}}
		}
		if ev.Key != n.resultKey {
			log.Printf("normalizer: ignoring state delta with key %q from agent %q", ev.Key, ev.Agent)
			return nil
		}
		if ev.Payload == "" {
			return []NormalizedEvent{{Kind: NormalizedError, StageID: stageID, Message: "agent produced an empty result"}}
		}
		return []NormalizedEvent{{Kind: NormalizedResult, StageID: stageID, Value: ev.Payload}}

	default:
		log.Printf("normalizer: dropping malformed event kind %q from agent %q", ev.Kind, ev.Agent)
		return nil
	}
}

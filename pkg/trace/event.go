package trace

import "time"

// Kind identifies the lifecycle step an event records.
type Kind string

const (
	// KindThought is emitted before an agent consults its model.
	KindThought Kind = "thought"
	// KindAction is emitted when an agent invokes an augmentation backend.
	KindAction Kind = "action"
	// KindActionResult is emitted when an augmentation backend returns.
	KindActionResult Kind = "action_result"
)

// Event records one step of an agent's execution. Events are append-only
// within a run; Seq is the insertion position assigned by the recorder.
type Event struct {
	Kind    Kind              `json:"kind"`
	Agent   string            `json:"agent"`
	RunID   string            `json:"run_id,omitempty"`
	Seq     int               `json:"seq"`
	Time    time.Time         `json:"time"`
	Payload string            `json:"payload,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Failed  bool              `json:"failed,omitempty"`
}

// Thought builds a thought event for an agent.
func Thought(agent, payload string) Event {
	return Event{Kind: KindThought, Agent: agent, Time: time.Now(), Payload: payload}
}

// Action builds an action event describing an augmentation call.
func Action(agent, payload string) Event {
	return Event{Kind: KindAction, Agent: agent, Time: time.Now(), Payload: payload}
}

// ActionResult builds an action-result event carrying the backend output.
func ActionResult(agent, payload string, data map[string]string) Event {
	return Event{Kind: KindActionResult, Agent: agent, Time: time.Now(), Payload: payload, Data: data}
}

package stream

// EventKind identifies the type of stream event.
type EventKind string

const (
	EventContent          EventKind = "content"
	EventToolCallProgress EventKind = "tool_call_progress"
	EventToolCallComplete EventKind = "tool_call_complete"
	EventFlowHint         EventKind = "flow_hint"
	EventTimeout          EventKind = "timeout"
	EventError            EventKind = "error"
	EventDone             EventKind = "done"
)

// Pressure grades a flow hint.
type Pressure string

const (
	PressureLow  Pressure = "low"
	PressureHigh Pressure = "high"
)

// Event is a tagged union emitted by the Accumulator. Kind selects which
// fields are meaningful. Events are consumed once, in emission order.
type Event struct {
	Kind EventKind `json:"kind"`

	// Text carries batched content (EventContent).
	Text string `json:"text,omitempty"`

	// Index is the sequence index of the tool call a progress event refers
	// to (EventToolCallProgress).
	Index int `json:"index,omitempty"`

	// Request is the fully assembled tool call (EventToolCallComplete).
	Request *ToolCallRequest `json:"request,omitempty"`

	// Pressure grades a flow hint (EventFlowHint).
	Pressure Pressure `json:"pressure,omitempty"`

	// Message describes a timeout or error (EventTimeout, EventError).
	Message string `json:"message,omitempty"`
}

func contentEvent(text string) Event {
	return Event{Kind: EventContent, Text: text}
}

func flowHintEvent(p Pressure) Event {
	return Event{Kind: EventFlowHint, Pressure: p}
}

func timeoutEvent(message string) Event {
	return Event{Kind: EventTimeout, Message: message}
}

func errorEvent(message string) Event {
	return Event{Kind: EventError, Message: message}
}

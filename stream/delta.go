package stream

// DeltaKind discriminates between raw transport delta types.
type DeltaKind string

const (
	DeltaText     DeltaKind = "text"
	DeltaToolCall DeltaKind = "tool_call"
	DeltaDone     DeltaKind = "done"
	DeltaError    DeltaKind = "error"
)

// Delta is one raw unit from the model transport: a text fragment, a
// tool-call argument fragment tagged with that call's index, or the end
// marker. The transport delivers deltas in emission order.
type Delta struct {
	Kind DeltaKind `json:"kind"`

	// Text fragment (DeltaText).
	Text string `json:"text,omitempty"`

	// Tool-call fragment fields (DeltaToolCall). ToolCallIndex is the
	// position among this turn's tool calls, independent of text position.
	// ToolCallID and ToolName may be empty on continuation fragments.
	ToolCallIndex    int    `json:"tool_call_index,omitempty"`
	ToolCallID       string `json:"tool_call_id,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`
	ArgumentFragment string `json:"argument_fragment,omitempty"`

	// Transport failure (DeltaError). The stream terminates after one.
	Message string `json:"message,omitempty"`
}

// TextDelta creates a text fragment delta.
func TextDelta(text string) Delta {
	return Delta{Kind: DeltaText, Text: text}
}

// ToolCallDelta creates a tool-call fragment delta.
func ToolCallDelta(index int, id, name, fragment string) Delta {
	return Delta{
		Kind:             DeltaToolCall,
		ToolCallIndex:    index,
		ToolCallID:       id,
		ToolName:         name,
		ArgumentFragment: fragment,
	}
}

// DoneDelta creates the end-of-stream marker.
func DoneDelta() Delta {
	return Delta{Kind: DeltaDone}
}

// ErrorDelta creates a transport failure marker. It lets a source report a
// mid-stream error in-band so already-emitted content survives.
func ErrorDelta(message string) Delta {
	return Delta{Kind: DeltaError, Message: message}
}

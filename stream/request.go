package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ToolCallRequest is one tool invocation requested by the model, assembled
// incrementally from argument fragments as deltas arrive. SequenceIndex is
// the position in which the model emitted the call and is the only
// acceptable ordering key for results. Once the stream signals completion
// the request is immutable.
type ToolCallRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SequenceIndex int    `json:"sequence_index"`

	fragments []string
	frozen    bool
}

// newToolCallRequest creates a request at first-delta time. When the
// transport supplies no call ID, one is generated.
func newToolCallRequest(id, name string, sequenceIndex int) *ToolCallRequest {
	if id == "" {
		id = "call_" + uuid.New().String()
	}
	return &ToolCallRequest{
		ID:            id,
		Name:          name,
		SequenceIndex: sequenceIndex,
	}
}

// NewToolCallRequest creates an already-complete request from assembled
// arguments. Transports that deliver tool calls whole rather than as
// fragments use this directly.
func NewToolCallRequest(id, name string, sequenceIndex int, rawArguments string) *ToolCallRequest {
	req := newToolCallRequest(id, name, sequenceIndex)
	req.appendFragment(rawArguments)
	req.freeze()
	return req
}

// appendFragment adds a raw argument fragment in arrival order. Fragments
// arriving after the request froze are dropped.
func (r *ToolCallRequest) appendFragment(fragment string) {
	if r.frozen {
		return
	}
	if fragment != "" {
		r.fragments = append(r.fragments, fragment)
	}
}

// freeze marks the request immutable.
func (r *ToolCallRequest) freeze() {
	r.frozen = true
}

// Complete reports whether the stream has signaled this call's completion.
func (r *ToolCallRequest) Complete() bool {
	return r.frozen
}

// RawArguments returns the concatenation of all received argument fragments.
// An empty concatenation is returned as an empty JSON object so callers can
// treat argument-less calls uniformly.
func (r *ToolCallRequest) RawArguments() string {
	raw := strings.Join(r.fragments, "")
	if raw == "" {
		return "{}"
	}
	return raw
}

// ArgumentsValid reports whether the concatenated fragments form valid JSON.
// Partial fragments mid-stream are expected to be invalid; this never
// errors.
func (r *ToolCallRequest) ArgumentsValid() bool {
	return gjson.Valid(r.RawArguments())
}

// Arguments returns the concatenated fragments as a raw JSON message, or an
// error when they do not parse. Callers surface the parse failure as a
// normal tool-execution error rather than a stream failure.
func (r *ToolCallRequest) Arguments() (json.RawMessage, error) {
	raw := r.RawArguments()
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("tool call %s (%s): arguments are not valid JSON", r.ID, r.Name)
	}
	return json.RawMessage(raw), nil
}

package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/tidegate/helmsman/stream"
)

func drain(t *testing.T, ch <-chan stream.Delta) []stream.Delta {
	t.Helper()
	var out []stream.Delta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestScriptedSourceReplaysInOrder(t *testing.T) {
	src := NewScriptedSource(
		[]stream.Delta{stream.TextDelta("hello"), stream.DoneDelta()},
		[]stream.Delta{stream.ToolCallDelta(0, "call_1", "read_file", `{"path":"a.txt"}`), stream.DoneDelta()},
	)

	ch, err := src.StreamTurn(context.Background(), TurnRequest{Model: "m1"})
	if err != nil {
		t.Fatalf("stream turn: %v", err)
	}
	first := drain(t, ch)
	if len(first) != 2 || first[0].Kind != stream.DeltaText || first[0].Text != "hello" {
		t.Fatalf("unexpected first turn: %+v", first)
	}

	ch, err = src.StreamTurn(context.Background(), TurnRequest{Model: "m2"})
	if err != nil {
		t.Fatalf("stream turn: %v", err)
	}
	second := drain(t, ch)
	if len(second) != 2 || second[0].Kind != stream.DeltaToolCall || second[0].ToolName != "read_file" {
		t.Fatalf("unexpected second turn: %+v", second)
	}

	// A turn past the script still terminates.
	ch, _ = src.StreamTurn(context.Background(), TurnRequest{})
	extra := drain(t, ch)
	if len(extra) != 1 || extra[0].Kind != stream.DeltaDone {
		t.Fatalf("expected bare done, got %+v", extra)
	}

	reqs := src.Requests()
	if len(reqs) != 3 || reqs[0].Model != "m1" || reqs[1].Model != "m2" {
		t.Fatalf("requests not recorded: %+v", reqs)
	}
}

func TestScriptedSourceErr(t *testing.T) {
	src := NewScriptedSource()
	src.Err = errors.New("provider down")
	if _, err := src.StreamTurn(context.Background(), TurnRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseToolCalls(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		calls int
		first string
	}{
		{
			name:  "bare array",
			text:  `[{"name": "read_file", "arguments": {"path": "a.txt"}}]`,
			calls: 1,
			first: "read_file",
		},
		{
			name:  "wrapper object",
			text:  `{"tool_calls": [{"name": "write_file", "arguments": {}}, {"name": "read_file", "arguments": {}}]}`,
			calls: 2,
			first: "write_file",
		},
		{
			name:  "unnamed entries dropped",
			text:  `[{"name": "", "arguments": {}}, {"name": "exec", "arguments": {}}]`,
			calls: 1,
			first: "exec",
		},
		{
			name:  "malformed json",
			text:  `[{"name": "read_file"`,
			calls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := parseToolCalls(tt.text)
			if len(calls) != tt.calls {
				t.Fatalf("expected %d calls, got %d", tt.calls, len(calls))
			}
			if tt.calls > 0 && calls[0].Name != tt.first {
				t.Errorf("expected first call %q, got %q", tt.first, calls[0].Name)
			}
		})
	}
}

func TestToolCallMarker(t *testing.T) {
	if idx := toolCallMarker(`plain prose with no calls`); idx != -1 {
		t.Errorf("expected -1, got %d", idx)
	}
	text := `Let me check. [{"name": "read_file", "arguments": {}}]`
	if idx := toolCallMarker(text); idx != 14 {
		t.Errorf("expected marker at 14, got %d", idx)
	}
}

func TestEmitTextSplitsProseFromCalls(t *testing.T) {
	ch := make(chan stream.Delta, 8)
	emitText(ch, `Checking the file. [{"name": "read_file", "arguments": {"path": "a.txt"}}]`)
	close(ch)

	var got []stream.Delta
	for d := range ch {
		got = append(got, d)
	}
	if len(got) != 2 {
		t.Fatalf("expected text + tool call, got %+v", got)
	}
	if got[0].Kind != stream.DeltaText || got[0].Text != "Checking the file." {
		t.Errorf("unexpected text delta: %+v", got[0])
	}
	if got[1].Kind != stream.DeltaToolCall || got[1].ToolName != "read_file" {
		t.Errorf("unexpected tool call delta: %+v", got[1])
	}
	if got[1].ToolCallID == "" {
		t.Error("tool call should get a generated id")
	}
}

func TestEmitTextPassesThroughUnparseableMarker(t *testing.T) {
	ch := make(chan stream.Delta, 8)
	text := `see [{"name" of the thing]`
	emitText(ch, text)
	close(ch)

	var got []stream.Delta
	for d := range ch {
		got = append(got, d)
	}
	if len(got) != 1 || got[0].Kind != stream.DeltaText || got[0].Text != text {
		t.Fatalf("expected passthrough text, got %+v", got)
	}
}

func TestSchemaFor(t *testing.T) {
	type readFileInput struct {
		Path  string `json:"path" jsonschema_description:"Relative path of the file"`
		Limit int    `json:"limit,omitempty"`
	}

	schema := SchemaFor[readFileInput]()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("missing properties: %v", schema)
	}
	if _, ok := props["path"]; !ok {
		t.Errorf("expected path property, got %v", props)
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("meta keys should be stripped")
	}

	def := ToolDefFor[readFileInput]("read_file", "Read a file")
	if def.Name != "read_file" || def.Parameters["type"] != "object" {
		t.Errorf("unexpected tool def: %+v", def)
	}
}

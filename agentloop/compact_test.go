package agentloop

import (
	"context"
	"strings"
	"testing"

	"github.com/tidegate/helmsman/toolgraph"
)

func TestTrimCompactorKeepsOpeningAndRecent(t *testing.T) {
	var history []Turn
	history = append(history, NewUserTurn("original request"))
	for i := 0; i < 20; i++ {
		history = append(history, NewAssistantTurn("step", nil))
		history = append(history, NewToolResultsTurn([]*toolgraph.ToolResult{{Success: true, Output: "ok"}}))
	}

	compact := TrimCompactor(4)
	out, err := compact(context.Background(), history)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	if len(out) != 6 { // opening user + note + 4 recent
		t.Fatalf("expected 6 turns, got %d", len(out))
	}
	if out[0].Kind != TurnUser || out[0].User.Content != "original request" {
		t.Errorf("opening user turn lost: %+v", out[0])
	}
	if out[1].Kind != TurnSystem || !strings.Contains(out[1].System.Content, "compacted") {
		t.Errorf("expected compaction note, got %+v", out[1])
	}
	for _, turn := range out[2:] {
		if turn.Kind == TurnSystem {
			t.Error("recent turns should be originals")
		}
	}
}

func TestTrimCompactorShortHistoryUnchanged(t *testing.T) {
	history := []Turn{NewUserTurn("hi"), NewAssistantTurn("hello", nil)}
	compact := TrimCompactor(8)

	out, err := compact(context.Background(), history)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if len(out) != len(history) {
		t.Errorf("short history should be untouched, got %d turns", len(out))
	}
}

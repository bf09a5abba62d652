package middleware

import (
	"context"
	"strings"
	"testing"
)

func TestTurnLimit(t *testing.T) {
	mw := TurnLimit()

	tests := []struct {
		name   string
		round  int
		limit  int
		action Action
	}{
		{"below limit", 3, 10, ActionContinue},
		{"at limit", 10, 10, ActionStop},
		{"over limit", 11, 10, ActionStop},
		{"unlimited", 500, 0, ActionContinue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := mw.BeforeTurn(context.Background(), &TurnContext{Round: tt.round, MaxRounds: tt.limit})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Action != tt.action {
				t.Errorf("action = %s, want %s", res.Action, tt.action)
			}
		})
	}
}

func TestCostLimit(t *testing.T) {
	mw := CostLimit()

	tests := []struct {
		name   string
		cost   float64
		limit  float64
		action Action
	}{
		{"under budget", 0.5, 2.0, ActionContinue},
		{"at budget", 2.0, 2.0, ActionStop},
		{"over budget", 2.5, 2.0, ActionStop},
		{"no ceiling", 99.0, 0, ActionContinue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := mw.BeforeTurn(context.Background(), &TurnContext{Cost: tt.cost, CostLimit: tt.limit})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Action != tt.action {
				t.Errorf("action = %s, want %s", res.Action, tt.action)
			}
		})
	}
}

func TestContextSizeThresholds(t *testing.T) {
	// One token per character makes the arithmetic exact.
	cfg := ContextSizeConfig{
		WarnRatio:    0.8,
		CompactRatio: 0.9,
		Estimator:    func(_, content string) int { return len(content) },
	}
	mw := ContextSize(cfg)

	run := func(contentLen, window int) Result {
		tc := &TurnContext{
			ContextWindow: window,
			History:       []Message{{Role: "user", Content: strings.Repeat("x", contentLen)}},
		}
		res, err := mw.BeforeTurn(context.Background(), tc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res
	}

	if res := run(10, 1000); res.Action != ActionContinue {
		t.Errorf("small history: got %s", res.Action)
	}
	if res := run(850, 1000); res.Action != ActionWarn {
		t.Errorf("85%% usage should warn, got %s", res.Action)
	}
	if res := run(950, 1000); res.Action != ActionCompact {
		t.Errorf("95%% usage should compact, got %s", res.Action)
	}
	// No window size means no estimate.
	if res := run(950, 0); res.Action != ActionContinue {
		t.Errorf("unknown window should continue, got %s", res.Action)
	}
}

func TestWorkflowGuard(t *testing.T) {
	mw := WorkflowGuard(WorkflowGuardConfig{VerbThreshold: 3})

	busy := &TurnContext{History: []Message{
		{Role: "user", Content: "Create the schema, add the handler, write tests, and deploy it."},
	}}
	res, err := mw.BeforeTurn(context.Background(), busy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != ActionWarn {
		t.Fatalf("expected warn for a four-action request, got %s", res.Action)
	}

	calm := &TurnContext{History: []Message{
		{Role: "user", Content: "What does this function do?"},
	}}
	res, _ = mw.BeforeTurn(context.Background(), calm)
	if res.Action != ActionContinue {
		t.Errorf("question should continue, got %s", res.Action)
	}
}

func TestCountActionVerbs(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"please create and delete things", 2},
		{"Create, create, CREATE!", 3},
		{"the creation of additives", 0}, // only whole words count
	}
	for _, tt := range tests {
		if got := CountActionVerbs(tt.text); got != tt.want {
			t.Errorf("CountActionVerbs(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

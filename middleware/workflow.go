package middleware

import (
	"context"
	"fmt"
	"strings"
)

// actionVerbs are the imperative verbs the workflow heuristic counts. A
// request naming many distinct actions tends to need decomposition before
// the loop can make steady progress.
var actionVerbs = map[string]struct{}{
	"create": {}, "add": {}, "write": {}, "build": {}, "implement": {},
	"update": {}, "change": {}, "modify": {}, "edit": {}, "fix": {},
	"refactor": {}, "rename": {}, "move": {}, "delete": {}, "remove": {},
	"install": {}, "deploy": {}, "configure": {}, "test": {}, "migrate": {},
}

// WorkflowGuardConfig tunes the workflow heuristic.
type WorkflowGuardConfig struct {
	// VerbThreshold is the action-verb count at which a warning fires.
	VerbThreshold int
}

// DefaultWorkflowGuardConfig returns the default threshold.
func DefaultWorkflowGuardConfig() WorkflowGuardConfig {
	return WorkflowGuardConfig{VerbThreshold: 6}
}

// WorkflowGuard returns a stateless middleware that counts action verbs in
// the latest user message and warns when the request looks like it bundles
// too many separate tasks for one loop run.
func WorkflowGuard(cfg WorkflowGuardConfig) Middleware {
	if cfg.VerbThreshold <= 0 {
		cfg.VerbThreshold = DefaultWorkflowGuardConfig().VerbThreshold
	}

	return Middleware{
		Name:     "workflow-guard",
		Priority: 45,
		BeforeTurn: func(_ context.Context, tc *TurnContext) (Result, error) {
			count := CountActionVerbs(tc.LatestUserMessage())
			if count >= cfg.VerbThreshold {
				return Warn(fmt.Sprintf("request names %d actions; consider splitting it into smaller tasks", count)), nil
			}
			return Continue(), nil
		},
	}
}

// CountActionVerbs counts occurrences of known action verbs in text. It is
// a pure function over the text.
func CountActionVerbs(text string) int {
	count := 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]{}\"'")
		if _, ok := actionVerbs[word]; ok {
			count++
		}
	}
	return count
}

package middleware

import "context"

// Message is one entry of the conversation history as seen by policy
// checks.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnContext is the read-mostly snapshot a middleware hook receives. The
// driver rebuilds it each round; hooks must not retain references across
// rounds.
type TurnContext struct {
	SessionID string

	// Round counters.
	Round     int
	MaxRounds int

	// Accumulated session cost and its ceiling. Zero limit means no
	// ceiling.
	Cost      float64
	CostLimit float64

	// Token counters maintained by the session.
	InputTokens  int
	OutputTokens int

	// Model and its context window size in tokens, for context-size
	// estimation.
	Model         string
	ContextWindow int

	// History is a snapshot of the conversation so far.
	History []Message

	// Cancel aborts the session's in-flight work.
	Cancel context.CancelFunc
}

// TotalTokens returns the combined input and output token count.
func (tc *TurnContext) TotalTokens() int {
	return tc.InputTokens + tc.OutputTokens
}

// LatestUserMessage returns the content of the most recent user message,
// or an empty string when there is none.
func (tc *TurnContext) LatestUserMessage() string {
	for i := len(tc.History) - 1; i >= 0; i-- {
		if tc.History[i].Role == "user" {
			return tc.History[i].Content
		}
	}
	return ""
}

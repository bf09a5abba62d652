package middleware

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const perMessageOverhead = 4

// TokenEstimator estimates the token count of one message's content for a
// given model. Injected so tests stay deterministic.
type TokenEstimator func(model, content string) int

// ContextSizeConfig tunes the context-size middleware.
type ContextSizeConfig struct {
	// WarnRatio of the context window at which a warning is attached.
	WarnRatio float64
	// CompactRatio of the context window at which compaction is requested.
	CompactRatio float64
	// Estimator defaults to tiktoken with a chars/4 fallback.
	Estimator TokenEstimator
}

// DefaultContextSizeConfig returns the default thresholds.
func DefaultContextSizeConfig() ContextSizeConfig {
	return ContextSizeConfig{
		WarnRatio:    0.8,
		CompactRatio: 0.9,
	}
}

// ContextSize returns a middleware that estimates the history's token
// footprint against the model's context window, warning past WarnRatio and
// requesting compaction past CompactRatio.
func ContextSize(cfg ContextSizeConfig) Middleware {
	def := DefaultContextSizeConfig()
	if cfg.WarnRatio <= 0 {
		cfg.WarnRatio = def.WarnRatio
	}
	if cfg.CompactRatio <= 0 {
		cfg.CompactRatio = def.CompactRatio
	}
	if cfg.Estimator == nil {
		cfg.Estimator = EstimateTokens
	}

	return Middleware{
		Name:     "context-size",
		Priority: 30,
		BeforeTurn: func(_ context.Context, tc *TurnContext) (Result, error) {
			if tc.ContextWindow <= 0 {
				return Continue(), nil
			}

			total := 0
			for _, msg := range tc.History {
				total += cfg.Estimator(tc.Model, msg.Content) + perMessageOverhead
			}

			usage := float64(total) / float64(tc.ContextWindow)
			switch {
			case usage >= cfg.CompactRatio:
				return Compact(fmt.Sprintf("context usage at %d%% of window, compacting", int(usage*100))), nil
			case usage >= cfg.WarnRatio:
				return Warn(fmt.Sprintf("context usage at %d%% of window", int(usage*100))), nil
			}
			return Continue(), nil
		},
	}
}

// EstimateTokens counts tokens with the model's tiktoken encoding, falling
// back to cl100k_base and finally to a chars/4 heuristic when no encoding
// is available.
func EstimateTokens(model, content string) int {
	if content == "" {
		return 0
	}

	encoder, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil || encoder == nil {
		tokens := len(content) / 4
		if tokens <= 0 {
			tokens = 1
		}
		return tokens
	}
	return len(encoder.Encode(content, nil, nil))
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"

	"github.com/tidegate/helmsman/stream"
)

// GollmSource produces delta sequences from a gollm.LLM instance. One source
// covers every provider gollm supports; providers without native streaming
// fall back to a blocking generate call.
type GollmSource struct {
	provider string
	model    string
	llm      gollm.LLM
}

// GollmOption configures a GollmSource.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the default model for the source.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmSource creates a GollmSource for the given provider. If apiKey is
// empty, gollm reads it from environment variables.
func NewGollmSource(provider, apiKey string, opts ...GollmOption) (*GollmSource, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // Retries belong to the orchestration layer.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmSource{provider: provider, model: model, llm: llm}, nil
}

// NewGollmSourceFromLLM wraps an existing gollm.LLM instance.
func NewGollmSourceFromLLM(provider string, llm gollm.LLM) *GollmSource {
	return &GollmSource{provider: provider, llm: llm}
}

// Name returns the provider identifier.
func (s *GollmSource) Name() string {
	return s.provider
}

// StreamTurn starts one model turn. When the provider streams, tokens are
// forwarded as text deltas as they arrive, except that embedded tool-call
// JSON is held back and converted into tool-call deltas at end of stream.
func (s *GollmSource) StreamTurn(ctx context.Context, req TurnRequest) (<-chan stream.Delta, error) {
	prompt := s.buildPrompt(req)
	s.applyRequestOptions(req)

	ch := make(chan stream.Delta, 64)

	if !s.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			text, err := s.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- stream.ErrorDelta(err.Error())
				return
			}
			emitText(ch, text)
			ch <- stream.DoneDelta()
		}()
		return ch, nil
	}

	tokens, err := s.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(ch)
		defer tokens.Close()

		var full strings.Builder
		emitted := 0
		markerAt := -1

		for {
			token, err := tokens.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- stream.ErrorDelta(err.Error())
				return
			}
			if token == nil {
				continue
			}

			full.WriteString(token.Text)
			if markerAt >= 0 {
				continue
			}
			text := full.String()
			if idx := toolCallMarker(text); idx >= 0 {
				markerAt = idx
				flushTextUpTo(ch, text, &emitted, idx)
				continue
			}
			// Hold back a small tail so a marker split across tokens is
			// still caught whole.
			flushTextUpTo(ch, text, &emitted, len(text)-markerHoldback)
		}

		text := full.String()
		if markerAt >= 0 {
			if calls := parseToolCalls(text[markerAt:]); len(calls) > 0 {
				emitCalls(ch, calls)
			} else {
				// Looked like a tool call but did not parse; pass it
				// through as text.
				flushTextUpTo(ch, text, &emitted, len(text))
			}
		} else {
			flushTextUpTo(ch, text, &emitted, len(text))
		}
		ch <- stream.DoneDelta()
	}()

	return ch, nil
}

// buildPrompt translates a TurnRequest into a gollm prompt. Roles gollm has
// no native slot for are folded into the prompt text with bracket prefixes.
func (s *GollmSource) buildPrompt(req TurnRequest) *gollm.Prompt {
	systemPrompt := req.System
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += "\n" + msg.Content
		case RoleUser:
			userParts = append(userParts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			prefix := "[Tool Result]"
			if msg.IsError {
				prefix = "[Tool Error]"
			}
			userParts = append(userParts, prefix+": "+msg.Content)
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption

	if strings.TrimSpace(systemPrompt) != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != "" {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (s *GollmSource) applyRequestOptions(req TurnRequest) {
	if req.Model != "" {
		s.llm.SetOption("model", req.Model)
	}
	if req.Temperature > 0 {
		s.llm.SetOption("temperature", req.Temperature)
	}
	if req.MaxTokens > 0 {
		s.llm.SetOption("max_tokens", req.MaxTokens)
	}
}

// Tool calls may arrive embedded in the response text as JSON. These markers
// open the two shapes gollm providers are known to emit.
var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

const markerHoldback = 12 // one byte short of the longest marker

func toolCallMarker(text string) int {
	found := -1
	for _, m := range toolCallMarkers {
		if idx := strings.Index(text, m); idx >= 0 && (found < 0 || idx < found) {
			found = idx
		}
	}
	return found
}

type parsedCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseToolCalls extracts tool calls from response text, accepting either a
// {"tool_calls": [...]} wrapper or a bare array of {name, arguments}.
func parseToolCalls(text string) []parsedCall {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, `{"tool_calls"`) {
		var wrapper struct {
			ToolCalls []parsedCall `json:"tool_calls"`
		}
		if err := json.Unmarshal([]byte(text), &wrapper); err == nil {
			return named(wrapper.ToolCalls)
		}
		return nil
	}

	var calls []parsedCall
	if err := json.Unmarshal([]byte(text), &calls); err == nil {
		return named(calls)
	}
	return nil
}

func named(calls []parsedCall) []parsedCall {
	out := calls[:0]
	for _, c := range calls {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	return out
}

func emitCalls(ch chan<- stream.Delta, calls []parsedCall) {
	for i, c := range calls {
		id := "call_" + uuid.New().String()[:8]
		args := string(c.Arguments)
		if args == "" {
			args = "{}"
		}
		ch <- stream.ToolCallDelta(i, id, c.Name, args)
	}
}

func emitText(ch chan<- stream.Delta, text string) {
	if idx := toolCallMarker(text); idx >= 0 {
		if calls := parseToolCalls(text[idx:]); len(calls) > 0 {
			if head := strings.TrimSpace(text[:idx]); head != "" {
				ch <- stream.TextDelta(head)
			}
			emitCalls(ch, calls)
			return
		}
	}
	if text != "" {
		ch <- stream.TextDelta(text)
	}
}

func flushTextUpTo(ch chan<- stream.Delta, text string, emitted *int, upto int) {
	if upto <= *emitted {
		return
	}
	ch <- stream.TextDelta(text[*emitted:upto])
	*emitted = upto
}

package agentloop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidegate/helmsman/middleware"
	"github.com/tidegate/helmsman/stream"
	"github.com/tidegate/helmsman/toolgraph"
	"github.com/tidegate/helmsman/transport"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateProcessing SessionState = "processing"
	StateCompacting SessionState = "compacting"
	StateHalted     SessionState = "halted"
	StateClosed     SessionState = "closed"
)

// Config holds configuration for a session.
type Config struct {
	System        string  `json:"system,omitempty"`
	Model         string  `json:"model,omitempty"`
	ToolChoice    string  `json:"tool_choice,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	ContextWindow int     `json:"context_window,omitempty"`
	MaxRounds     int     `json:"max_rounds"` // 0 = unlimited
	CostLimit     float64 `json:"cost_limit"` // 0 = unlimited

	ToolOutputLimits map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits   map[string]int `json:"tool_line_limits,omitempty"`

	EnableLoopDetection bool `json:"enable_loop_detection"`
	LoopDetectionWindow int  `json:"loop_detection_window"`

	// Stream tunes the per-turn accumulator; Graph tunes the orchestrator.
	Stream stream.Config     `json:"-"`
	Graph  toolgraph.Options `json:"-"`

	// TimerInterval is how often the stream consumption loop polls the
	// accumulator's timers.
	TimerInterval time.Duration `json:"-"`
	EventBuffer   int           `json:"-"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ToolChoice:          "auto",
		MaxRounds:           200,
		EnableLoopDetection: true,
		LoopDetectionWindow: 10,
		Stream:              stream.DefaultConfig(),
		Graph:               toolgraph.DefaultOptions(),
		TimerInterval:       10 * time.Millisecond,
		EventBuffer:         256,
	}
}

// Compactor rewrites the conversation history when the middleware pipeline
// asks for compaction. It returns the replacement history.
type Compactor func(ctx context.Context, history []Turn) ([]Turn, error)

// Session is the per-session driver of the agent loop. Each session owns its
// own transport source, tool runner, access table, and middleware pipeline;
// nothing is shared between concurrent sessions.
type Session struct {
	id       string
	cfg      Config
	source   transport.Source
	runner   toolgraph.Runner
	table    *toolgraph.AccessTable
	pipeline *middleware.Pipeline
	compact  Compactor
	emitter  *EventEmitter

	mu            sync.Mutex
	state         SessionState
	history       []Turn
	tools         []transport.ToolDef
	steeringQueue []string
	followupQueue []string
	round         int
	cost          float64
	abortSignaled bool
}

// NewSession creates a session around the injected collaborators. A nil
// config uses defaults; a nil table treats every tool as undeclared.
func NewSession(source transport.Source, runner toolgraph.Runner, table *toolgraph.AccessTable, pipeline *middleware.Pipeline, config *Config) *Session {
	sessionID := uuid.New().String()

	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.TimerInterval <= 0 {
		cfg.TimerInterval = 10 * time.Millisecond
	}
	if table == nil {
		table = toolgraph.NewAccessTable()
	}
	if pipeline == nil {
		pipeline = middleware.NewPipeline(nil)
	}

	return &Session{
		id:       sessionID,
		cfg:      cfg,
		source:   source,
		runner:   runner,
		table:    table,
		pipeline: pipeline,
		compact:  TrimCompactor(8),
		emitter:  NewEventEmitter(sessionID, cfg.EventBuffer),
		state:    StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// SetTools sets the tool definitions offered to the model each turn.
func (s *Session) SetTools(tools []transport.ToolDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = tools
}

// SetCompactor replaces the history compactor.
func (s *Session) SetCompactor(c Compactor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c != nil {
		s.compact = c
	}
}

// AddCost records cost accrued by the host's billing layer. The cost-limit
// middleware reads the running total.
func (s *Session) AddCost(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost += delta
}

// Steer queues a message to be injected after the current tool round.
func (s *Session) Steer(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steeringQueue = append(s.steeringQueue, message)
}

// FollowUp queues a message to be processed after the current input completes.
func (s *Session) FollowUp(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followupQueue = append(s.followupQueue, message)
}

// Abort signals the session to stop processing before the next round.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortSignaled = true
}

// Close terminates the session and releases the event channel. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"state": string(StateClosed),
	})
	s.emitter.Close()
}

// Submit processes a user input through the agent loop. It blocks until the
// loop goes idle, halts, or fails.
func (s *Session) Submit(ctx context.Context, userInput string) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	s.state = StateProcessing
	s.abortSignaled = false
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return s.processInput(ctx, cancel, userInput)
}

func (s *Session) processInput(ctx context.Context, cancel context.CancelFunc, userInput string) error {
	s.mu.Lock()
	s.history = append(s.history, NewUserTurn(userInput))
	s.mu.Unlock()
	s.emitter.Emit(EventUserInput, map[string]interface{}{
		"content": userInput,
	})

	s.drainSteering()

	for {
		s.mu.Lock()
		aborted := s.abortSignaled
		round := s.round
		s.mu.Unlock()

		if aborted {
			s.halt("aborted")
			return nil
		}
		select {
		case <-ctx.Done():
			s.emitter.Emit(EventError, map[string]interface{}{
				"error": "context cancelled",
			})
			s.setState(StateIdle)
			return ctx.Err()
		default:
		}

		// Policy checks before the model call.
		tc := s.turnContext(cancel)
		switch res := s.pipeline.RunBeforeTurn(ctx, tc); res.Action {
		case middleware.ActionStop:
			s.halt(res.Message)
			return nil
		case middleware.ActionCompact:
			s.compactHistory(ctx, res.Message)
			continue
		case middleware.ActionWarn:
			s.emitter.Emit(EventWarning, map[string]interface{}{
				"message": res.Message,
			})
		}

		s.emitter.Emit(EventRoundStart, map[string]interface{}{
			"round": round,
		})

		// One model turn through the accumulator.
		acc, text, err := s.modelTurn(ctx)
		if err != nil {
			s.setState(StateIdle)
			return err
		}
		requests := acc.Requests()

		s.mu.Lock()
		s.history = append(s.history, NewAssistantTurn(text, requests))
		s.mu.Unlock()
		if text != "" {
			s.emitter.Emit(EventAssistantText, map[string]interface{}{
				"text": text,
			})
		}

		switch acc.State() {
		case stream.StateCompleted:
		case stream.StateCancelled:
			s.setState(StateIdle)
			return ctx.Err()
		default:
			// Timed out or errored; the stream events already said so and
			// the content that arrived is preserved in history.
			s.halt(string(acc.State()))
			return nil
		}

		// Natural completion: the model answered without tools.
		if len(requests) == 0 {
			break
		}

		s.executeRound(ctx, requests)

		s.drainSteering()
		s.detectLoop()

		tc = s.turnContext(cancel)
		switch res := s.pipeline.RunAfterTurn(ctx, tc); res.Action {
		case middleware.ActionStop:
			s.halt(res.Message)
			return nil
		case middleware.ActionCompact:
			s.compactHistory(ctx, res.Message)
		case middleware.ActionWarn:
			s.emitter.Emit(EventWarning, map[string]interface{}{
				"message": res.Message,
			})
		}
	}

	// Process follow-up messages if any are queued.
	s.mu.Lock()
	if len(s.followupQueue) > 0 {
		nextInput := s.followupQueue[0]
		s.followupQueue = s.followupQueue[1:]
		s.mu.Unlock()
		return s.processInput(ctx, cancel, nextInput)
	}
	s.state = StateIdle
	s.mu.Unlock()
	s.emitter.Emit(EventInputComplete, nil)

	return nil
}

// modelTurn streams one model response through a fresh accumulator, driving
// its timers and forwarding its events, and returns the terminal accumulator
// plus the concatenated content text.
func (s *Session) modelTurn(ctx context.Context) (*stream.Accumulator, string, error) {
	s.mu.Lock()
	req := transport.TurnRequest{
		System:     s.cfg.System,
		Messages:   HistoryToMessages(s.history),
		Tools:      s.tools,
		ToolChoice: s.cfg.ToolChoice,
		Model:      s.cfg.Model,
		MaxTokens:  s.cfg.MaxTokens,
	}
	s.mu.Unlock()

	ch, err := s.source.StreamTurn(ctx, req)
	if err != nil {
		s.emitter.Emit(EventError, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, "", fmt.Errorf("model turn: %w", err)
	}

	acc := stream.NewAccumulator(s.cfg.Stream)
	var text strings.Builder
	ticker := time.NewTicker(s.cfg.TimerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.forward(acc.Cancel(), &text)
			return acc, text.String(), nil
		case <-ticker.C:
			s.forward(acc.CheckTimeout(), &text)
			if acc.State() != stream.StateStreaming && acc.State() != stream.StateIdle {
				return acc, text.String(), nil
			}
		case d, ok := <-ch:
			if !ok {
				// Source hung up without an end marker; complete with what
				// arrived.
				s.forward(acc.Flush(), &text)
				return acc, text.String(), nil
			}
			s.forward(acc.Process(d), &text)
			if acc.State() != stream.StateStreaming && acc.State() != stream.StateIdle {
				return acc, text.String(), nil
			}
		}
	}
}

// forward translates stream events into session events and collects content.
func (s *Session) forward(events []stream.Event, text *strings.Builder) {
	for _, ev := range events {
		switch ev.Kind {
		case stream.EventContent:
			text.WriteString(ev.Text)
		case stream.EventToolCallComplete:
			s.emitter.Emit(EventToolCallComplete, map[string]interface{}{
				"call_id":   ev.Request.ID,
				"tool_name": ev.Request.Name,
			})
		case stream.EventFlowHint:
			s.emitter.Emit(EventWarning, map[string]interface{}{
				"message": fmt.Sprintf("stream buffer pressure %s", ev.Pressure),
			})
		case stream.EventTimeout:
			s.emitter.Emit(EventTimeout, map[string]interface{}{
				"message": ev.Message,
			})
		case stream.EventError:
			s.emitter.Emit(EventError, map[string]interface{}{
				"error": ev.Message,
			})
		}
	}
}

// executeRound builds the dependency graph for the round's requests, runs it,
// and appends the results to history in sequence order. Full outputs go to
// the event stream; truncated outputs go to history.
func (s *Session) executeRound(ctx context.Context, requests []*stream.ToolCallRequest) {
	for _, req := range requests {
		s.emitter.Emit(EventToolCallStart, map[string]interface{}{
			"call_id":   req.ID,
			"tool_name": req.Name,
		})
	}

	nodes := toolgraph.Build(requests, s.table)
	batch := toolgraph.Run(ctx, nodes, s.runner, s.cfg.Graph)

	s.mu.Lock()
	charLimits := s.cfg.ToolOutputLimits
	lineLimits := s.cfg.ToolLineLimits
	s.mu.Unlock()

	recorded := make([]*toolgraph.ToolResult, 0, len(batch.Results))
	for _, r := range batch.Results {
		s.emitter.Emit(EventToolResult, map[string]interface{}{
			"call_id":   r.RequestID,
			"tool_name": r.ToolName,
			"success":   r.Success,
			"skipped":   r.Skipped,
			"output":    r.Output, // Full untruncated output.
			"error":     r.Error,
		})

		cp := *r
		cp.Output = TruncateToolOutput(r.Output, r.ToolName, charLimits, lineLimits)
		recorded = append(recorded, &cp)
	}

	s.mu.Lock()
	s.history = append(s.history, NewToolResultsTurn(recorded))
	s.round++
	s.mu.Unlock()
}

// drainSteering injects all queued steering messages into the history.
func (s *Session) drainSteering() {
	s.mu.Lock()
	messages := make([]string, len(s.steeringQueue))
	copy(messages, s.steeringQueue)
	s.steeringQueue = s.steeringQueue[:0]
	s.mu.Unlock()

	for _, msg := range messages {
		s.mu.Lock()
		s.history = append(s.history, NewSteeringTurn(msg))
		s.mu.Unlock()
		s.emitter.Emit(EventSteeringInjected, map[string]interface{}{
			"content": msg,
		})
	}
}

// detectLoop injects a steering warning when recent tool calls repeat.
func (s *Session) detectLoop() {
	s.mu.Lock()
	enabled := s.cfg.EnableLoopDetection
	window := s.cfg.LoopDetectionWindow
	history := make([]Turn, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	if !enabled || !DetectLoop(history, window) {
		return
	}

	warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", window)
	s.mu.Lock()
	s.history = append(s.history, NewSteeringTurn(warning))
	s.mu.Unlock()
	s.emitter.Emit(EventLoopDetection, map[string]interface{}{
		"message": warning,
	})
}

// compactHistory runs the compactor and swaps in the rewritten history.
func (s *Session) compactHistory(ctx context.Context, reason string) {
	s.setState(StateCompacting)
	before := len(s.History())

	compacted, err := s.compact(ctx, s.History())
	if err != nil {
		s.emitter.Emit(EventWarning, map[string]interface{}{
			"message": fmt.Sprintf("compaction failed: %v", err),
		})
	} else {
		s.mu.Lock()
		s.history = compacted
		s.mu.Unlock()
	}

	s.emitter.Emit(EventCompaction, map[string]interface{}{
		"message":      reason,
		"turns_before": before,
		"turns_after":  len(s.History()),
	})
	s.setState(StateProcessing)
}

func (s *Session) halt(reason string) {
	s.setState(StateHalted)
	s.emitter.Emit(EventHalt, map[string]interface{}{
		"reason": reason,
	})
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// turnContext snapshots the session counters for a middleware phase. Token
// counts are character-based approximations; exact counting belongs to the
// context-size middleware's estimator.
func (s *Session) turnContext(cancel context.CancelFunc) *middleware.TurnContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []middleware.Message
	inputChars, outputChars := 0, 0
	for _, turn := range s.history {
		switch turn.Kind {
		case TurnUser, TurnSteering:
			msgs = append(msgs, middleware.Message{Role: "user", Content: turn.TextContent()})
			inputChars += len(turn.TextContent())
		case TurnAssistant:
			msgs = append(msgs, middleware.Message{Role: "assistant", Content: turn.TextContent()})
			outputChars += len(turn.TextContent())
		case TurnSystem:
			msgs = append(msgs, middleware.Message{Role: "system", Content: turn.TextContent()})
			inputChars += len(turn.TextContent())
		case TurnToolResults:
			if turn.ToolResults == nil {
				continue
			}
			for _, r := range turn.ToolResults.Results {
				content := r.Output
				if !r.Success {
					content = r.Error
				}
				msgs = append(msgs, middleware.Message{Role: "tool", Content: content})
				inputChars += len(content)
			}
		}
	}

	return &middleware.TurnContext{
		SessionID:     s.id,
		Round:         s.round,
		MaxRounds:     s.cfg.MaxRounds,
		Cost:          s.cost,
		CostLimit:     s.cfg.CostLimit,
		InputTokens:   inputChars / 4,
		OutputTokens:  outputChars / 4,
		Model:         s.cfg.Model,
		ContextWindow: s.cfg.ContextWindow,
		History:       msgs,
		Cancel:        cancel,
	}
}

package stream

import (
	"sort"
	"time"
)

// State is the lifecycle state of an Accumulator.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateErrored   State = "errored"
	StateCancelled State = "cancelled"
)

// Clock supplies the current time. Injected so timeout behavior is
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Config holds Accumulator tuning. Zero-value fields are back-filled with
// defaults, except GlobalTimeout which stays disabled at zero.
type Config struct {
	// ChunkTimeout restarts on every received delta.
	ChunkTimeout time.Duration
	// GlobalTimeout bounds the entire stream. Zero disables it.
	GlobalTimeout time.Duration
	// FlushThreshold is the buffered content size that forces a flush.
	FlushThreshold int
	// IdleFlushWindow flushes buffered content when no delta has arrived
	// for this long.
	IdleFlushWindow time.Duration
	// HighWaterMark is the buffered content size past which a high-pressure
	// flow hint is emitted.
	HighWaterMark int
	// Clock defaults to the system clock.
	Clock Clock
}

// DefaultConfig returns the default accumulator configuration.
func DefaultConfig() Config {
	return Config{
		ChunkTimeout:    5000 * time.Millisecond,
		GlobalTimeout:   0,
		FlushThreshold:  1024,
		IdleFlushWindow: 50 * time.Millisecond,
		HighWaterMark:   4096,
	}
}

// Stats accumulates per-stream counters.
type Stats struct {
	ContentBytes  int  `json:"content_bytes"`
	ContentEvents int  `json:"content_events"`
	ToolCalls     int  `json:"tool_calls"`
	TimedOut      bool `json:"timed_out"`
	Cancelled     bool `json:"cancelled"`
}

// Accumulator converts an ordered delta sequence into stream events. It is
// owned by a single stream for its lifetime and is not safe for concurrent
// use; the consuming loop owns it exclusively.
type Accumulator struct {
	cfg   Config
	clock Clock

	state   State
	buf     []byte
	calls   map[int]*ToolCallRequest // keyed by transport tool-call index
	order   []int                    // transport indices in first-delta order
	nextSeq int

	started   time.Time
	lastDelta time.Time
	hintHigh  bool
	stats     Stats
}

// NewAccumulator creates an Accumulator with the given configuration.
func NewAccumulator(cfg Config) *Accumulator {
	def := DefaultConfig()
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = def.ChunkTimeout
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = def.FlushThreshold
	}
	if cfg.IdleFlushWindow <= 0 {
		cfg.IdleFlushWindow = def.IdleFlushWindow
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = def.HighWaterMark
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Accumulator{
		cfg:   cfg,
		clock: cfg.Clock,
		state: StateIdle,
		calls: make(map[int]*ToolCallRequest),
	}
}

// State returns the current lifecycle state.
func (a *Accumulator) State() State { return a.state }

// Stats returns a copy of the per-stream counters.
func (a *Accumulator) Stats() Stats { return a.stats }

// HasTimedOut reports whether either timer has fired.
func (a *Accumulator) HasTimedOut() bool { return a.stats.TimedOut }

func (a *Accumulator) terminal() bool {
	switch a.state {
	case StateCompleted, StateTimedOut, StateErrored, StateCancelled:
		return true
	}
	return false
}

// Process consumes one delta and returns the events it produced. Deltas
// arriving after the accumulator reached a terminal state are ignored.
func (a *Accumulator) Process(d Delta) []Event {
	if a.terminal() {
		return nil
	}

	now := a.clock.Now()
	var events []Event

	if a.state == StateIdle {
		a.state = StateStreaming
		a.started = now
	} else if fired := a.expireTimers(now, &events); fired {
		// A timer fired before this delta arrived; the late delta is
		// discarded along with the rest of the stream.
		return events
	}

	switch d.Kind {
	case DeltaText:
		a.buf = append(a.buf, d.Text...)
		if len(a.buf) >= a.cfg.HighWaterMark && !a.hintHigh {
			a.hintHigh = true
			events = append(events, flowHintEvent(PressureHigh))
		}
		if len(a.buf) >= a.cfg.FlushThreshold {
			events = a.flushContent(events)
		}

	case DeltaToolCall:
		req, ok := a.calls[d.ToolCallIndex]
		if !ok {
			req = newToolCallRequest(d.ToolCallID, d.ToolName, a.nextSeq)
			a.nextSeq++
			a.calls[d.ToolCallIndex] = req
			a.order = append(a.order, d.ToolCallIndex)
			a.stats.ToolCalls++
		}
		if req.Name == "" && d.ToolName != "" {
			req.Name = d.ToolName
		}
		req.appendFragment(d.ArgumentFragment)
		events = append(events, Event{Kind: EventToolCallProgress, Index: req.SequenceIndex})

	case DeltaDone:
		events = a.finish(events)

	case DeltaError:
		// Content emitted so far stays valid; partial tool calls are dropped.
		events = a.flushContent(events)
		events = append(events, errorEvent(d.Message))
		a.state = StateErrored
	}

	a.lastDelta = now
	return events
}

// Flush ends the stream: buffered content is emitted, every assembled
// tool-call request is completed (even when its arguments do not parse),
// and a done event closes the sequence. Calling Flush on a terminal
// accumulator returns nil.
func (a *Accumulator) Flush() []Event {
	if a.terminal() {
		return nil
	}
	return a.finish(nil)
}

func (a *Accumulator) finish(events []Event) []Event {
	events = a.flushContent(events)
	for _, req := range a.Requests() {
		req.freeze()
		events = append(events, Event{Kind: EventToolCallComplete, Request: req})
	}
	events = append(events, Event{Kind: EventDone})
	a.state = StateCompleted
	return events
}

// CheckTimeout lets the consuming loop drive the timers: it flushes content
// that has sat past the idle window and fires the chunk or global timer when
// due. Content already emitted stays valid after a timeout.
func (a *Accumulator) CheckTimeout() []Event {
	if a.state != StateStreaming {
		return nil
	}

	now := a.clock.Now()
	var events []Event
	if a.expireTimers(now, &events) {
		return events
	}

	if len(a.buf) > 0 && now.Sub(a.lastDelta) >= a.cfg.IdleFlushWindow {
		events = a.flushContent(events)
	}
	return events
}

// expireTimers appends timeout events and moves to the timed-out state when
// a timer is due. Buffered content is flushed first; it is never retracted.
func (a *Accumulator) expireTimers(now time.Time, events *[]Event) bool {
	if a.cfg.GlobalTimeout > 0 && now.Sub(a.started) >= a.cfg.GlobalTimeout {
		*events = a.flushContent(*events)
		*events = append(*events, timeoutEvent("global stream timeout"))
		a.state = StateTimedOut
		a.stats.TimedOut = true
		return true
	}
	if !a.lastDelta.IsZero() && now.Sub(a.lastDelta) >= a.cfg.ChunkTimeout {
		*events = a.flushContent(*events)
		*events = append(*events, timeoutEvent("chunk timeout"))
		a.state = StateTimedOut
		a.stats.TimedOut = true
		return true
	}
	return false
}

// Cancel halts processing immediately. No partial tool call is completed;
// the single returned event reports the cancellation.
func (a *Accumulator) Cancel() []Event {
	if a.terminal() {
		return nil
	}
	a.state = StateCancelled
	a.stats.Cancelled = true
	a.buf = nil
	return []Event{errorEvent("cancelled")}
}

// Requests returns the tool-call requests assembled so far, ordered by
// sequence index.
func (a *Accumulator) Requests() []*ToolCallRequest {
	reqs := make([]*ToolCallRequest, 0, len(a.order))
	for _, idx := range a.order {
		reqs = append(reqs, a.calls[idx])
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].SequenceIndex < reqs[j].SequenceIndex
	})
	return reqs
}

func (a *Accumulator) flushContent(events []Event) []Event {
	if len(a.buf) == 0 {
		return events
	}
	text := string(a.buf)
	a.buf = a.buf[:0]
	a.hintHigh = false
	a.stats.ContentBytes += len(text)
	a.stats.ContentEvents++
	return append(events, contentEvent(text))
}

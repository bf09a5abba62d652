package transport

import (
	"context"
	"sync"

	"github.com/tidegate/helmsman/stream"
)

// Source starts one model turn and returns its ordered delta sequence. The
// channel is closed after the terminal delta. Implementations report
// mid-stream failures with an error delta rather than closing early.
type Source interface {
	StreamTurn(ctx context.Context, req TurnRequest) (<-chan stream.Delta, error)
}

// ScriptedSource replays pre-built delta scripts, one per turn, and records
// every request it receives. Safe for concurrent use.
type ScriptedSource struct {
	mu       sync.Mutex
	scripts  [][]stream.Delta
	next     int
	requests []TurnRequest

	// Err, when set, is returned by every StreamTurn call.
	Err error
}

// NewScriptedSource creates a source that serves the given scripts in order.
// Turns past the last script produce a bare done marker.
func NewScriptedSource(scripts ...[]stream.Delta) *ScriptedSource {
	return &ScriptedSource{scripts: scripts}
}

// StreamTurn records the request and replays the next script.
func (s *ScriptedSource) StreamTurn(ctx context.Context, req TurnRequest) (<-chan stream.Delta, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		err := s.Err
		s.mu.Unlock()
		return nil, err
	}
	var script []stream.Delta
	if s.next < len(s.scripts) {
		script = s.scripts[s.next]
		s.next++
	} else {
		script = []stream.Delta{stream.DoneDelta()}
	}
	s.mu.Unlock()

	ch := make(chan stream.Delta, len(script))
	go func() {
		defer close(ch)
		for _, d := range script {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Requests returns a copy of every request seen so far.
func (s *ScriptedSource) Requests() []TurnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TurnRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

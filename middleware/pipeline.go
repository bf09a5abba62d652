package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Action is a hook's verdict on the current round.
type Action string

const (
	ActionContinue Action = "continue"
	ActionStop     Action = "stop"
	ActionCompact  Action = "compact"
	ActionWarn     Action = "warn"
)

// Result is what a hook returns and what a phase run aggregates to.
type Result struct {
	Action  Action `json:"action"`
	Message string `json:"message,omitempty"`
}

// Continue lets the round proceed.
func Continue() Result { return Result{Action: ActionContinue} }

// Stop halts the loop with an explanatory message.
func Stop(message string) Result { return Result{Action: ActionStop, Message: message} }

// Compact requests a history compaction before the round proceeds.
func Compact(message string) Result { return Result{Action: ActionCompact, Message: message} }

// Warn attaches a non-terminal warning to the round.
func Warn(message string) Result { return Result{Action: ActionWarn, Message: message} }

// HookFunc is one policy check over the round's context.
type HookFunc func(ctx context.Context, tc *TurnContext) (Result, error)

// DefaultPriority is used when a middleware leaves Priority at zero.
const DefaultPriority = 100

// Middleware bundles a named pair of optional hooks. Lower priorities run
// first within a phase.
type Middleware struct {
	Name       string
	Priority   int
	BeforeTurn HookFunc
	AfterTurn  HookFunc
}

type registration struct {
	id string
	mw Middleware
}

// Pipeline holds the registered middlewares, sorted ascending by priority.
type Pipeline struct {
	regs   []*registration
	logger *slog.Logger
	mu     sync.Mutex
}

// NewPipeline creates an empty pipeline. A nil logger falls back to
// slog.Default.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger.With("component", "middleware")}
}

// Use registers a middleware and returns its registration ID. Middlewares
// with equal priority keep registration order.
func (p *Pipeline) Use(mw Middleware) string {
	if mw.Priority == 0 {
		mw.Priority = DefaultPriority
	}
	reg := &registration{id: uuid.New().String(), mw: mw}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = append(p.regs, reg)
	sort.SliceStable(p.regs, func(i, j int) bool {
		return p.regs[i].mw.Priority < p.regs[j].mw.Priority
	})
	return reg.id
}

// Remove unregisters every middleware with the given name and reports
// whether any was removed.
func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.regs[:0]
	removed := false
	for _, reg := range p.regs {
		if reg.mw.Name == name {
			removed = true
			continue
		}
		kept = append(kept, reg)
	}
	p.regs = kept
	return removed
}

// Names returns the registered middleware names in execution order.
func (p *Pipeline) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.regs))
	for i, reg := range p.regs {
		names[i] = reg.mw.Name
	}
	return names
}

// RunBeforeTurn runs the before-turn phase.
func (p *Pipeline) RunBeforeTurn(ctx context.Context, tc *TurnContext) Result {
	return p.runPhase(ctx, tc, "before_turn", func(mw Middleware) HookFunc { return mw.BeforeTurn })
}

// RunAfterTurn runs the after-turn phase.
func (p *Pipeline) RunAfterTurn(ctx context.Context, tc *TurnContext) Result {
	return p.runPhase(ctx, tc, "after_turn", func(mw Middleware) HookFunc { return mw.AfterTurn })
}

// runPhase iterates middlewares in priority order. The first stop or
// compact short-circuits the phase; warnings aggregate; hook errors and
// panics degrade to continue.
func (p *Pipeline) runPhase(ctx context.Context, tc *TurnContext, phase string, pick func(Middleware) HookFunc) Result {
	p.mu.Lock()
	regs := make([]*registration, len(p.regs))
	copy(regs, p.regs)
	p.mu.Unlock()

	var warnings []string
	for _, reg := range regs {
		hook := pick(reg.mw)
		if hook == nil {
			continue
		}

		res, err := p.safeInvoke(ctx, tc, hook)
		if err != nil {
			p.logger.Warn("middleware hook failed",
				"middleware", reg.mw.Name,
				"phase", phase,
				"error", err)
			continue
		}

		switch res.Action {
		case ActionStop, ActionCompact:
			return res
		case ActionWarn:
			if res.Message != "" {
				warnings = append(warnings, res.Message)
			}
		}
	}

	if len(warnings) > 0 {
		return Warn(strings.Join(warnings, "; "))
	}
	return Continue()
}

func (p *Pipeline) safeInvoke(ctx context.Context, tc *TurnContext, hook HookFunc) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Continue()
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, tc)
}

package middleware

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func hookReturning(res Result, calls *int) HookFunc {
	return func(_ context.Context, _ *TurnContext) (Result, error) {
		if calls != nil {
			*calls++
		}
		return res, nil
	}
}

func TestShortCircuitOnStop(t *testing.T) {
	p := NewPipeline(nil)

	guardCalls := 0
	p.Use(CostLimit())
	p.Use(Middleware{
		Name:       "workflow-guard",
		Priority:   45,
		BeforeTurn: hookReturning(Warn("would warn"), &guardCalls),
	})

	tc := &TurnContext{Cost: 5.0, CostLimit: 2.0}
	res := p.RunBeforeTurn(context.Background(), tc)

	if res.Action != ActionStop {
		t.Fatalf("expected stop, got %s", res.Action)
	}
	if guardCalls != 0 {
		t.Errorf("hook after the stop ran %d times", guardCalls)
	}
}

func TestPriorityOrdering(t *testing.T) {
	p := NewPipeline(nil)

	var order []string
	record := func(name string) HookFunc {
		return func(_ context.Context, _ *TurnContext) (Result, error) {
			order = append(order, name)
			return Continue(), nil
		}
	}

	p.Use(Middleware{Name: "late", Priority: 200, BeforeTurn: record("late")})
	p.Use(Middleware{Name: "early", Priority: 10, BeforeTurn: record("early")})
	p.Use(Middleware{Name: "default-a", BeforeTurn: record("default-a")})
	p.Use(Middleware{Name: "default-b", BeforeTurn: record("default-b")})

	p.RunBeforeTurn(context.Background(), &TurnContext{})

	want := []string{"early", "default-a", "default-b", "late"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("execution order %v, want %v", order, want)
	}
}

func TestWarningsAggregate(t *testing.T) {
	p := NewPipeline(nil)
	p.Use(Middleware{Name: "w1", Priority: 1, BeforeTurn: hookReturning(Warn("first"), nil)})
	p.Use(Middleware{Name: "c", Priority: 2, BeforeTurn: hookReturning(Continue(), nil)})
	p.Use(Middleware{Name: "w2", Priority: 3, BeforeTurn: hookReturning(Warn("second"), nil)})

	res := p.RunBeforeTurn(context.Background(), &TurnContext{})
	if res.Action != ActionWarn {
		t.Fatalf("expected warn, got %s", res.Action)
	}
	if res.Message != "first; second" {
		t.Errorf("aggregated message %q", res.Message)
	}
}

func TestNothingReturnsContinue(t *testing.T) {
	p := NewPipeline(nil)
	p.Use(Middleware{Name: "quiet", BeforeTurn: hookReturning(Continue(), nil)})
	// A middleware with only an after-turn hook contributes nothing here.
	p.Use(Middleware{Name: "after-only", AfterTurn: hookReturning(Warn("later"), nil)})

	res := p.RunBeforeTurn(context.Background(), &TurnContext{})
	if res.Action != ActionContinue {
		t.Errorf("expected continue, got %s", res.Action)
	}
}

func TestErroringHookDegradesToContinue(t *testing.T) {
	p := NewPipeline(nil)
	nextCalls := 0
	p.Use(Middleware{
		Name:     "faulty",
		Priority: 1,
		BeforeTurn: func(_ context.Context, _ *TurnContext) (Result, error) {
			return Result{}, errors.New("boom")
		},
	})
	p.Use(Middleware{Name: "next", Priority: 2, BeforeTurn: hookReturning(Continue(), &nextCalls)})

	res := p.RunBeforeTurn(context.Background(), &TurnContext{})
	if res.Action != ActionContinue {
		t.Errorf("faulty hook should degrade to continue, got %s", res.Action)
	}
	if nextCalls != 1 {
		t.Errorf("later middleware should still run, calls=%d", nextCalls)
	}
}

func TestPanickingHookDegradesToContinue(t *testing.T) {
	p := NewPipeline(nil)
	p.Use(Middleware{
		Name: "panicky",
		BeforeTurn: func(_ context.Context, _ *TurnContext) (Result, error) {
			panic("policy bug")
		},
	})

	res := p.RunBeforeTurn(context.Background(), &TurnContext{})
	if res.Action != ActionContinue {
		t.Errorf("panicking hook should degrade to continue, got %s", res.Action)
	}
}

func TestRemove(t *testing.T) {
	p := NewPipeline(nil)
	calls := 0
	p.Use(Middleware{Name: "target", BeforeTurn: hookReturning(Stop("stop"), &calls)})

	if !p.Remove("target") {
		t.Fatal("Remove should report success")
	}
	if p.Remove("target") {
		t.Error("second Remove should report nothing removed")
	}

	res := p.RunBeforeTurn(context.Background(), &TurnContext{})
	if calls != 0 {
		t.Errorf("removed middleware ran %d times", calls)
	}
	if res.Action != ActionContinue {
		t.Errorf("empty phase should continue, got %s", res.Action)
	}
}

func TestAfterTurnPhase(t *testing.T) {
	p := NewPipeline(nil)
	p.Use(Middleware{Name: "halt-after", AfterTurn: hookReturning(Stop("done"), nil)})

	if res := p.RunBeforeTurn(context.Background(), &TurnContext{}); res.Action != ActionContinue {
		t.Errorf("before phase should be unaffected, got %s", res.Action)
	}
	if res := p.RunAfterTurn(context.Background(), &TurnContext{}); res.Action != ActionStop {
		t.Errorf("after phase should stop, got %s", res.Action)
	}
}

func TestCompactShortCircuits(t *testing.T) {
	p := NewPipeline(nil)
	laterCalls := 0
	p.Use(Middleware{Name: "compactor", Priority: 1, BeforeTurn: hookReturning(Compact("fold it"), nil)})
	p.Use(Middleware{Name: "later", Priority: 2, BeforeTurn: hookReturning(Continue(), &laterCalls)})

	res := p.RunBeforeTurn(context.Background(), &TurnContext{})
	if res.Action != ActionCompact || !strings.Contains(res.Message, "fold") {
		t.Fatalf("expected compact result, got %+v", res)
	}
	if laterCalls != 0 {
		t.Error("compact must short-circuit the phase")
	}
}

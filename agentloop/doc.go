// Package agentloop drives the agent execution loop.
//
// A Session ties the other packages together: each round it runs the
// middleware pipeline's before-turn phase, streams one model response
// through a stream.Accumulator, builds a dependency graph for the assembled
// tool-call requests, executes it with the toolgraph orchestrator, appends
// the ordered results to history, and runs the after-turn phase. A stop from
// either phase halts the loop; a compact runs the session's Compactor and
// the round restarts.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Session: the per-session orchestrator holding conversation state,
//     counters, and the steering and follow-up queues. Every collaborator
//     (transport source, tool runner, access table, pipeline) is injected
//     at construction and owned by exactly one session.
//   - Turn: a Kind-discriminated history entry (user, assistant, tool
//     results, system, steering).
//   - EventEmitter: typed event stream for host application integration,
//     buffered with non-blocking drop.
//   - Compactor: the history-rewriting hook invoked on a compact action.
//
// # Quick Start
//
//	source, _ := transport.NewGollmSource("anthropic", "")
//	pipeline := middleware.NewPipeline(nil)
//	pipeline.Use(middleware.CostLimit())
//	pipeline.Use(middleware.TurnLimit())
//
//	session := agentloop.NewSession(source, runner, table, pipeline, nil)
//	defer session.Close()
//
//	if err := session.Submit(ctx, "Summarize the repo layout"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range session.Events() {
//	    fmt.Printf("[%s] %v\n", event.Kind, event.Data)
//	}
package agentloop

// Package toolgraph decides which of a turn's tool calls can run
// concurrently and runs them.
//
// Each tool declares what it touches through an AccessTable entry: a
// resource type, an access mode, and the argument keys that name the
// concrete scope (file paths, container names). Build resolves those
// declarations against the parsed call arguments and produces a dependency
// graph: a later call depends on an earlier one when their accesses
// conflict. Edges only ever point from later to earlier sequence positions,
// so the graph is acyclic by construction.
//
// Run walks the graph with a concurrency ceiling, invoking an injected
// runner for each ready node, retrying failures with exponential backoff,
// and skipping the transitive dependents of a call that fails terminally.
// Results come back ordered by the sequence in which the model requested
// the calls, regardless of completion order, because the conversation
// protocol echoes tool results back in request order.
//
// Tools not registered in the table resolve to execute-mode access, which
// conflicts with everything. A shell command may touch anything, so the
// default serializes rather than guesses.
package toolgraph

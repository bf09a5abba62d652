// Package middleware runs a priority-ordered chain of policy checks before
// and after each round of the agent loop.
//
// Middlewares register hooks against a Pipeline; lower priorities run
// first. A hook can let the round proceed, stop the loop, request a history
// compaction, or attach a warning. The first stop or compact ends the phase
// immediately; warnings accumulate and are joined into a single result. A
// hook that returns an error or panics is logged and treated as continue,
// so one faulty policy check cannot wedge the loop.
//
// The bundled middlewares cover the standard session guards: a cost
// ceiling, a round ceiling, a context-size check backed by tiktoken
// estimates, and a workflow heuristic that counts action verbs in the
// user's request.
package middleware

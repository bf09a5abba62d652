package toolgraph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tidegate/helmsman/stream"
)

// ToolResult is the outcome of one tool call. It is produced by the runner
// (or synthesized for skipped nodes) and never mutated afterwards.
type ToolResult struct {
	RequestID     string `json:"request_id"`
	ToolName      string `json:"tool_name"`
	SequenceIndex int    `json:"sequence_index"`
	Success       bool   `json:"success"`
	Output        string `json:"output,omitempty"`
	Error         string `json:"error,omitempty"`
	// Skipped distinguishes "never ran because an ancestor failed" from
	// "ran and failed".
	Skipped bool `json:"skipped,omitempty"`
	// Retries is how many times the call was retried before this result.
	Retries int `json:"retries,omitempty"`
}

// Runner executes one tool call. It is supplied by the tool registry, must
// be re-entrant, and must honor ctx cancellation so in-flight subprocesses
// can be terminated. Returning an error or a result with Success=false
// both count as a failed attempt.
type Runner func(ctx context.Context, req *stream.ToolCallRequest) (*ToolResult, error)

// Options configures a batch execution.
type Options struct {
	// ConcurrencyLimit caps simultaneously running nodes.
	ConcurrencyLimit int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryDelay is the delay before the first retry.
	RetryDelay time.Duration
	// BackoffMultiplier scales the delay for each subsequent retry.
	BackoffMultiplier float64
	// Sleep waits out a retry delay. Injected for deterministic tests;
	// defaults to a ctx-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the default execution options.
func DefaultOptions() Options {
	return Options{
		ConcurrencyLimit:  4,
		MaxRetries:        2,
		RetryDelay:        1000 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

// BatchResult aggregates one round of tool execution. Results are ordered
// by the sequence index of the original requests regardless of completion
// order.
type BatchResult struct {
	Results        []*ToolResult `json:"results"`
	SucceededCount int           `json:"succeeded_count"`
	FailedCount    int           `json:"failed_count"`
	SkippedCount   int           `json:"skipped_count"`
	TotalRetries   int           `json:"total_retries"`
	Duration       time.Duration `json:"duration"`
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type completion struct {
	node     *Node
	result   *ToolResult
	attempts int
}

// Run walks the dependency graph, invoking the runner for up to
// ConcurrencyLimit nodes at a time. Failed nodes are retried with
// exponential backoff; once retries are exhausted the node fails and every
// transitive dependent is skipped without being invoked. Failure isolation
// is per branch: ready nodes not depending on the failure keep running.
// Cancelling ctx stops new work and marks all non-terminal nodes skipped.
func Run(ctx context.Context, nodes []*Node, runner Runner, opts Options) *BatchResult {
	def := DefaultOptions()
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = def.ConcurrencyLimit
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.BackoffMultiplier <= 0 {
		opts.BackoffMultiplier = def.BackoffMultiplier
	}
	if opts.Sleep == nil {
		opts.Sleep = ctxSleep
	}

	start := time.Now()

	dependents := make(map[int][]*Node)
	remaining := make(map[*Node]int)
	var readyQ []*Node
	for _, n := range nodes {
		remaining[n] = len(n.dependsOn)
		for idx := range n.dependsOn {
			dependents[idx] = append(dependents[idx], n)
		}
		if n.status == StatusReady {
			readyQ = append(readyQ, n)
		}
	}

	done := make(chan completion)
	running := 0

	launch := func(n *Node) {
		n.setStatus(StatusRunning)
		running++
		go func() {
			res, attempts := runWithRetries(ctx, n.Request, runner, opts)
			done <- completion{node: n, result: res, attempts: attempts}
		}()
	}

	var skipBranch func(failed *Node, reason string)
	skipBranch = func(failed *Node, reason string) {
		for _, dep := range dependents[failed.Request.SequenceIndex] {
			if dep.terminal() || dep.status == StatusRunning {
				continue
			}
			dep.setStatus(StatusSkipped)
			dep.result = skippedResult(dep.Request, reason)
			skipBranch(dep, reason)
		}
	}

	totalRetries := 0
	for {
		for len(readyQ) > 0 && running < opts.ConcurrencyLimit && ctx.Err() == nil {
			n := readyQ[0]
			readyQ = readyQ[1:]
			launch(n)
		}
		if running == 0 {
			break
		}

		c := <-done
		running--
		n := c.node
		n.attempts = c.attempts
		n.result = c.result
		totalRetries += c.result.Retries

		switch {
		case ctx.Err() != nil && !c.result.Success:
			n.setStatus(StatusSkipped)
		case c.result.Success:
			n.setStatus(StatusSucceeded)
			for _, dep := range dependents[n.Request.SequenceIndex] {
				remaining[dep]--
				if remaining[dep] == 0 && dep.status == StatusPending {
					dep.setStatus(StatusReady)
					readyQ = append(readyQ, dep)
				}
			}
		default:
			n.setStatus(StatusFailed)
			reason := fmt.Sprintf("dependency %s (%s) failed: %s",
				n.Request.Name, n.Request.ID, c.result.Error)
			skipBranch(n, reason)
		}
	}

	// Whatever never reached a terminal state (cancellation, or a ready
	// node left behind after cancel) is skipped, not failed.
	reason := "batch cancelled"
	if ctx.Err() == nil {
		reason = "never became ready"
	}
	for _, n := range nodes {
		if !n.terminal() {
			n.setStatus(StatusSkipped)
			n.result = skippedResult(n.Request, reason)
		}
	}

	return assemble(nodes, totalRetries, time.Since(start))
}

// runWithRetries drives the retry loop for a single node. The nth retry
// waits RetryDelay * BackoffMultiplier^(n-1).
func runWithRetries(ctx context.Context, req *stream.ToolCallRequest, runner Runner, opts Options) (*ToolResult, int) {
	// A request whose accumulated arguments never parsed is surfaced as a
	// normal tool-execution failure without invoking the runner; retrying
	// cannot fix malformed arguments.
	if _, err := req.Arguments(); err != nil {
		return failedResult(req, err.Error(), 0), 0
	}

	attempts := 0
	var lastErr string
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		if ctx.Err() != nil {
			return failedResult(req, "cancelled", retriesSoFar(attempts)), attempts
		}
		attempts = attempt

		res, err := invoke(ctx, runner, req)
		if err == nil && res.Success {
			res.RequestID = req.ID
			res.ToolName = req.Name
			res.SequenceIndex = req.SequenceIndex
			res.Retries = attempt - 1
			return res, attempts
		}
		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = res.Error
		}

		if attempt > opts.MaxRetries {
			break
		}
		delay := time.Duration(float64(opts.RetryDelay) *
			math.Pow(opts.BackoffMultiplier, float64(attempt-1)))
		if err := opts.Sleep(ctx, delay); err != nil {
			return failedResult(req, "cancelled", retriesSoFar(attempts)), attempts
		}
	}
	return failedResult(req, lastErr, retriesSoFar(attempts)), attempts
}

func retriesSoFar(attempts int) int {
	if attempts <= 0 {
		return 0
	}
	return attempts - 1
}

// invoke calls the runner, converting a panic into an error so one
// misbehaving tool cannot take down the batch.
func invoke(ctx context.Context, runner Runner, req *stream.ToolCallRequest) (res *ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("tool %s panicked: %v", req.Name, r)
		}
	}()
	res, err = runner(ctx, req)
	if err == nil && res == nil {
		err = fmt.Errorf("tool %s returned no result", req.Name)
	}
	return res, err
}

func failedResult(req *stream.ToolCallRequest, errText string, retries int) *ToolResult {
	return &ToolResult{
		RequestID:     req.ID,
		ToolName:      req.Name,
		SequenceIndex: req.SequenceIndex,
		Success:       false,
		Error:         errText,
		Retries:       retries,
	}
}

func skippedResult(req *stream.ToolCallRequest, reason string) *ToolResult {
	return &ToolResult{
		RequestID:     req.ID,
		ToolName:      req.Name,
		SequenceIndex: req.SequenceIndex,
		Success:       false,
		Skipped:       true,
		Error:         reason,
	}
}

func assemble(nodes []*Node, totalRetries int, duration time.Duration) *BatchResult {
	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Request.SequenceIndex < sorted[j].Request.SequenceIndex
	})

	batch := &BatchResult{
		Results:      make([]*ToolResult, 0, len(sorted)),
		TotalRetries: totalRetries,
		Duration:     duration,
	}
	for _, n := range sorted {
		batch.Results = append(batch.Results, n.result)
		switch n.status {
		case StatusSucceeded:
			batch.SucceededCount++
		case StatusFailed:
			batch.FailedCount++
		case StatusSkipped:
			batch.SkippedCount++
		}
	}
	return batch
}

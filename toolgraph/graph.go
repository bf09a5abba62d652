package toolgraph

import (
	"sort"

	"github.com/tidegate/helmsman/stream"
)

// Status is the lifecycle state of a graph node. Transitions are
// monotonic: pending -> ready -> running -> succeeded or failed, with
// skipped reserved for nodes that never start because an ancestor failed
// or the batch was cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Node wraps one tool-call request for a single round's execution. Nodes
// are created when the graph is built and discarded at round end; only the
// orchestrator mutates them.
type Node struct {
	Request *stream.ToolCallRequest
	Access  ResourceAccess

	dependsOn map[int]struct{} // sequence indices of required ancestors
	status    Status
	attempts  int
	result    *ToolResult
}

// Status returns the node's current lifecycle state.
func (n *Node) Status() Status { return n.status }

// Attempts returns how many times the runner was invoked for this node.
func (n *Node) Attempts() int { return n.attempts }

// Result returns the node's terminal result, or nil before completion.
func (n *Node) Result() *ToolResult { return n.result }

// DependsOn returns the sequence indices this node must wait for, sorted.
func (n *Node) DependsOn() []int {
	deps := make([]int, 0, len(n.dependsOn))
	for idx := range n.dependsOn {
		deps = append(deps, idx)
	}
	sort.Ints(deps)
	return deps
}

// setStatus applies a transition, ignoring any that would move a node
// backwards out of a terminal state.
func (n *Node) setStatus(to Status) {
	switch n.status {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return
	}
	n.status = to
}

func (n *Node) terminal() bool {
	switch n.status {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Build constructs the dependency graph for one turn's tool-call requests.
// For each pair (i, j) with i earlier than j in sequence order, j depends
// on i when their resolved accesses conflict. Edges only go from later to
// earlier positions, so the result is a DAG. Nodes with no dependencies
// start ready.
func Build(requests []*stream.ToolCallRequest, table *AccessTable) []*Node {
	nodes := make([]*Node, len(requests))
	for i, req := range requests {
		nodes[i] = &Node{
			Request:   req,
			Access:    table.Resolve(req.Name, req.RawArguments()),
			dependsOn: make(map[int]struct{}),
			status:    StatusPending,
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Request.SequenceIndex < nodes[j].Request.SequenceIndex
	})

	for j := 1; j < len(nodes); j++ {
		for i := 0; i < j; i++ {
			if nodes[j].Access.ConflictsWith(nodes[i].Access) {
				nodes[j].dependsOn[nodes[i].Request.SequenceIndex] = struct{}{}
			}
		}
	}

	for _, n := range nodes {
		if len(n.dependsOn) == 0 {
			n.status = StatusReady
		}
	}
	return nodes
}

package toolgraph

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/tidegate/helmsman/stream"
)

func req(seq int, name, args string) *stream.ToolCallRequest {
	return stream.NewToolCallRequest(fmt.Sprintf("call_%d", seq), name, seq, args)
}

func TestBuildWriteWriteDependency(t *testing.T) {
	table := testTable()
	nodes := Build([]*stream.ToolCallRequest{
		req(0, "write_file", `{"path": "shared.txt", "content": "a"}`),
		req(1, "write_file", `{"path": "shared.txt", "content": "b"}`),
	}, table)

	if got := nodes[0].DependsOn(); len(got) != 0 {
		t.Errorf("first node has dependencies: %v", got)
	}
	if got := nodes[1].DependsOn(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("second writer should depend on first, got %v", got)
	}
	if nodes[0].Status() != StatusReady {
		t.Errorf("dependency-free node should be ready, got %s", nodes[0].Status())
	}
	if nodes[1].Status() != StatusPending {
		t.Errorf("dependent node should be pending, got %s", nodes[1].Status())
	}
}

func TestBuildIndependentReadsHaveNoEdges(t *testing.T) {
	table := testTable()
	nodes := Build([]*stream.ToolCallRequest{
		req(0, "read_file", `{"path": "a.txt"}`),
		req(1, "read_file", `{"path": "b.txt"}`),
		req(2, "read_file", `{"path": "a.txt"}`),
	}, table)

	for _, n := range nodes {
		if len(n.DependsOn()) != 0 {
			t.Errorf("read-only node %d has dependencies %v", n.Request.SequenceIndex, n.DependsOn())
		}
		if n.Status() != StatusReady {
			t.Errorf("node %d not ready: %s", n.Request.SequenceIndex, n.Status())
		}
	}
}

func TestBuildExecuteSerializesEverything(t *testing.T) {
	table := testTable()
	nodes := Build([]*stream.ToolCallRequest{
		req(0, "read_file", `{"path": "a.txt"}`),
		req(1, "exec_command", `{"command": "make"}`),
		req(2, "read_file", `{"path": "b.txt"}`),
	}, table)

	if got := nodes[1].DependsOn(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("exec should depend on the earlier read, got %v", got)
	}
	if got := nodes[2].DependsOn(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("later read should depend on exec, got %v", got)
	}
}

func TestBuildEdgesOnlyPointEarlier(t *testing.T) {
	table := testTable()
	nodes := Build([]*stream.ToolCallRequest{
		req(0, "write_file", `{"path": "x"}`),
		req(1, "exec_command", `{}`),
		req(2, "write_file", `{"path": "x"}`),
		req(3, "mystery_tool", `{}`),
	}, table)

	for _, n := range nodes {
		for _, dep := range n.DependsOn() {
			if dep >= n.Request.SequenceIndex {
				t.Errorf("node %d depends on %d: edge does not point earlier",
					n.Request.SequenceIndex, dep)
			}
		}
	}
}

package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutputHeadTail(t *testing.T) {
	output := strings.Repeat("a", 100) + strings.Repeat("b", 100)
	result := TruncateOutput(output, 50, TruncateHeadTail)

	if !strings.HasPrefix(result, strings.Repeat("a", 25)) {
		t.Error("head not preserved")
	}
	if !strings.HasSuffix(result, strings.Repeat("b", 25)) {
		t.Error("tail not preserved")
	}
	if !strings.Contains(result, "150 characters were removed") {
		t.Errorf("missing removal notice: %s", result)
	}
}

func TestTruncateOutputTail(t *testing.T) {
	output := strings.Repeat("a", 100) + strings.Repeat("b", 100)
	result := TruncateOutput(output, 50, TruncateTail)

	if !strings.HasSuffix(result, strings.Repeat("b", 50)) {
		t.Error("tail not preserved")
	}
	if strings.HasSuffix(result, "a") {
		t.Error("head should be dropped")
	}
}

func TestTruncateOutputUnderLimitUnchanged(t *testing.T) {
	if got := TruncateOutput("short", 100, TruncateHeadTail); got != "short" {
		t.Errorf("expected unchanged output, got %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	result := TruncateLines(strings.Join(lines, "\n"), 10)

	if !strings.Contains(result, "90 lines omitted") {
		t.Errorf("missing omission notice: %s", result)
	}
	if n := strings.Count(result, "\n"); n > 12 {
		t.Errorf("too many lines survive: %d", n)
	}
}

func TestTruncateToolOutputUsesConfiguredLimit(t *testing.T) {
	output := strings.Repeat("x", 1000)
	limits := map[string]int{"read_file": 100}

	result := TruncateToolOutput(output, "read_file", limits, nil)
	if len(result) >= 1000 {
		t.Error("configured limit not applied")
	}

	// Unconfigured tool falls back to the default cap, which this output
	// is far under.
	if got := TruncateToolOutput(output, "other_tool", limits, nil); got != output {
		t.Error("default limit should leave small output unchanged")
	}
}

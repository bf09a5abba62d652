package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultToolOutputChars bounds a tool result appended to history when no
// per-tool limit is configured.
const DefaultToolOutputChars = 30000

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	switch mode {
	case TruncateTail:
		removed := len(output) - maxChars
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed. "+
			"The full output is available in the event stream.]\n\n",
			removed) +
			output[len(output)-maxChars:]

	default:
		half := maxChars / 2
		removed := len(output) - maxChars
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"The full output is available in the event stream. "+
				"If you need to see specific parts, re-run the tool with more targeted parameters.]\n\n",
				removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full truncation pipeline for a tool:
// character-based truncation first to handle pathological cases, then an
// optional line cap for readability. Limits come from session configuration;
// the full output always remains available on the event stream.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars := DefaultToolOutputChars
	if ml, ok := charLimits[toolName]; ok && ml > 0 {
		maxChars = ml
	}
	result := TruncateOutput(output, maxChars, TruncateHeadTail)

	if ml, ok := lineLimits[toolName]; ok && ml > 0 {
		result = TruncateLines(result, ml)
	}
	return result
}

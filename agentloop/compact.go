package agentloop

import (
	"context"
	"fmt"
)

// TrimCompactor returns a Compactor that keeps the opening user turn and the
// most recent keepRecent turns, replacing everything in between with a single
// system note. It never errors, which makes it a safe default.
func TrimCompactor(keepRecent int) Compactor {
	if keepRecent < 1 {
		keepRecent = 1
	}
	return func(_ context.Context, history []Turn) ([]Turn, error) {
		if len(history) <= keepRecent+2 {
			return history, nil
		}

		cut := len(history) - keepRecent
		var head []Turn
		for _, turn := range history[:cut] {
			if turn.Kind == TurnUser {
				head = append(head, turn)
				break
			}
		}

		tail := history[cut:]
		elided := len(history) - len(head) - len(tail)
		if elided <= 0 {
			return history, nil
		}

		note := NewSystemTurn(fmt.Sprintf(
			"[Earlier conversation compacted: %d turns elided to reduce context size.]", elided))

		out := make([]Turn, 0, len(head)+1+len(tail))
		out = append(out, head...)
		out = append(out, note)
		out = append(out, tail...)
		return out, nil
	}
}

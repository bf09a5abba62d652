package middleware

import (
	"context"
	"fmt"
)

// CostLimit returns a middleware that stops the loop once the session's
// accumulated cost reaches its ceiling. A zero ceiling disables the check.
func CostLimit() Middleware {
	return Middleware{
		Name:     "cost-limit",
		Priority: 20,
		BeforeTurn: func(_ context.Context, tc *TurnContext) (Result, error) {
			if tc.CostLimit > 0 && tc.Cost >= tc.CostLimit {
				return Stop(fmt.Sprintf("session cost %.4f reached limit %.4f", tc.Cost, tc.CostLimit)), nil
			}
			return Continue(), nil
		},
	}
}

// TurnLimit returns a middleware that stops the loop once the round
// ceiling is reached. A zero ceiling disables the check.
func TurnLimit() Middleware {
	return Middleware{
		Name:     "turn-limit",
		Priority: 10,
		BeforeTurn: func(_ context.Context, tc *TurnContext) (Result, error) {
			if tc.MaxRounds > 0 && tc.Round >= tc.MaxRounds {
				return Stop(fmt.Sprintf("round %d reached limit %d", tc.Round, tc.MaxRounds)), nil
			}
			return Continue(), nil
		},
	}
}

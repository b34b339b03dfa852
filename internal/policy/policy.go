// Package policy implements the Strategy pattern for restart decisions.
// Each policy decides what the supervisor does after a session ends.
package policy

import (
	"time"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// DefaultRetryDelay is the fixed pause between capture attempts.
const DefaultRetryDelay = 5 * time.Second

// Action is what the supervisor should do next.
type Action string

const (
	ActionRestart Action = "restart"
	ActionStop    Action = "stop"
)

// Decision is a policy's answer for one finished session.
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// RestartPolicy decides the next step after a session.
// Implementations must be pure: the supervisor owns the RestartState.
type RestartPolicy interface {
	// Name returns the policy identifier (e.g., "fixed", "backoff").
	Name() string

	// Decide returns the next action for a finished session.
	Decide(outcome domain.Outcome, state domain.RestartState) Decision
}

// stopOnShutdown is shared by every policy: an intentional stop ends the loop.
func stopOnShutdown(outcome domain.Outcome) (Decision, bool) {
	if outcome == domain.OutcomeShutdownRequested {
		return Decision{Action: ActionStop, Reason: "shutdown requested"}, true
	}
	return Decision{}, false
}

func reasonFor(outcome domain.Outcome) string {
	switch outcome {
	case domain.OutcomeCleanExit:
		return "engine exited without error (unexpected for a live stream)"
	case domain.OutcomeFailureExit:
		return "engine failed"
	case domain.OutcomeSpawnFailure:
		return "engine could not be started"
	default:
		return string(outcome)
	}
}

package policy

import (
	"time"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// BackoffPolicy doubles the pause for each consecutive failure, up to Max.
// It never gives up.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// NewBackoff creates a capped exponential backoff policy.
func NewBackoff(base, max time.Duration) *BackoffPolicy {
	if max < base {
		max = base
	}
	return &BackoffPolicy{Base: base, Max: max}
}

func (p *BackoffPolicy) Name() string {
	return "backoff"
}

func (p *BackoffPolicy) Decide(outcome domain.Outcome, state domain.RestartState) Decision {
	if d, ok := stopOnShutdown(outcome); ok {
		return d
	}

	delay := p.Base
	// ConsecutiveFailures already includes the session being decided.
	for i := 1; i < state.ConsecutiveFailures && delay < p.Max; i++ {
		delay *= 2
	}
	if delay > p.Max {
		delay = p.Max
	}
	return Decision{Action: ActionRestart, Delay: delay, Reason: reasonFor(outcome)}
}

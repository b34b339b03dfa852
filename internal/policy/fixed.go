package policy

import (
	"time"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// FixedDelayPolicy retries forever with the same pause between attempts.
type FixedDelayPolicy struct {
	Delay time.Duration
}

// NewFixedDelay creates a fixed-delay policy.
func NewFixedDelay(delay time.Duration) *FixedDelayPolicy {
	return &FixedDelayPolicy{Delay: delay}
}

func (p *FixedDelayPolicy) Name() string {
	return "fixed"
}

func (p *FixedDelayPolicy) Decide(outcome domain.Outcome, state domain.RestartState) Decision {
	if d, ok := stopOnShutdown(outcome); ok {
		return d
	}
	return Decision{Action: ActionRestart, Delay: p.Delay, Reason: reasonFor(outcome)}
}

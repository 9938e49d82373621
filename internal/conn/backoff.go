package conn

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectPolicy bounds automatic reconnection. The delay before
// reconnection attempt n is min(InitialDelay*2^(n-1), MaxDelay).
type ReconnectPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultReconnectPolicy is 5 attempts starting at 1s, capped at 5s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
	}
}

func (p ReconnectPolicy) normalized() ReconnectPolicy {
	def := DefaultReconnectPolicy()
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// newBackOff returns a deterministic exponential backoff for the policy.
func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	p = p.normalized()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Delays lists the wait before each reconnection attempt.
func (p ReconnectPolicy) Delays() []time.Duration {
	p = p.normalized()
	b := p.newBackOff()
	delays := make([]time.Duration, p.MaxAttempts)
	for i := range delays {
		delays[i] = b.NextBackOff()
	}
	return delays
}

package model

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy computes exponential backoff with a hard ceiling and optional
// jitter: delay = min(base * 2^attempt, MaxBackoff), jittered by a fraction
// of itself.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultRetryPolicy backs off from one second up to an hour, with 10%
// jitter to avoid synchronized retry storms across tasks.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     3600 * time.Second,
		JitterFactor:   0.1,
	}
}

// Backoff returns the delay before retrying the given (zero-based) attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor * (rand.Float64()*2 - 1)
		backoff += jitter
	}
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

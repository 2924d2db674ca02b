package reconnect

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy maps a 1-based attempt number to the delay before the next attempt.
type Policy interface {
	Delay(attempt int) time.Duration
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(attempt int) time.Duration

// Delay implements Policy.
func (f PolicyFunc) Delay(attempt int) time.Duration {
	return f(attempt)
}

// Exponential is an exponential backoff with optional jitter.
type Exponential struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     bool // Scale each delay by a random factor in [0.5, 1.5)
}

// DefaultExponential returns the default reconnection curve.
func DefaultExponential() Exponential {
	return Exponential{
		Initial:    500 * time.Millisecond,
		Multiplier: 2.0,
		Max:        30 * time.Second,
		Jitter:     true,
	}
}

// Delay implements Policy.
func (e Exponential) Delay(attempt int) time.Duration {
	if e.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := e.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	delay := float64(e.Initial) * math.Pow(mult, float64(attempt-1))
	if e.Max > 0 && delay > float64(e.Max) {
		delay = float64(e.Max)
	}
	if e.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	// Without Max the curve leaves the int64 range after enough attempts.
	if delay >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Constant waits the same delay before every attempt.
type Constant time.Duration

// Delay implements Policy.
func (c Constant) Delay(int) time.Duration {
	return time.Duration(c)
}

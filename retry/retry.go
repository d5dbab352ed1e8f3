// Package retry implements bounded retries with exponential backoff for
// failures classified as transient.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/deepnoodle-ai/triage"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseWait    = 500 * time.Millisecond
)

// Policy bounds the retry behavior for one operation.
type Policy struct {
	MaxAttempts int
	BaseWait    time.Duration
}

// WithDefaults fills zero fields with the package defaults.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseWait <= 0 {
		p.BaseWait = DefaultBaseWait
	}
	return p
}

// Func is an operation that can be retried.
type Func func() error

// Attempt records one try of the wrapped operation.
type Attempt struct {
	Number int           `json:"number"`
	Err    string        `json:"error,omitempty"`
	Wait   time.Duration `json:"wait,omitempty"`
}

// Do executes f up to p.MaxAttempts times. Only errors classified transient
// via triage.IsTransient are retried; the first fatal or unclassified error
// is returned immediately. The returned attempts describe every try made,
// including the successful one.
func Do(ctx context.Context, p Policy, f Func) ([]Attempt, error) {
	p = p.WithDefaults()

	var attempts []Attempt
	var lastErr error
	for n := 1; n <= p.MaxAttempts; n++ {
		if n > 1 {
			wait := backoff(p.BaseWait, n-1)
			attempts[len(attempts)-1].Wait = wait
			select {
			case <-ctx.Done():
				return attempts, ctx.Err()
			case <-time.After(wait):
			}
		}
		err := f()
		if err == nil {
			attempts = append(attempts, Attempt{Number: n})
			return attempts, nil
		}
		attempts = append(attempts, Attempt{Number: n, Err: err.Error()})
		lastErr = err
		if !triage.IsTransient(err) {
			return attempts, err
		}
	}
	return attempts, lastErr
}

// backoff returns the exponential wait for the given retry with jitter.
func backoff(base time.Duration, retryNum int) time.Duration {
	wait := time.Duration(float64(base) * math.Pow(2, float64(retryNum-1)))
	jitter := time.Duration(rand.Float64() * float64(wait) * 0.1)
	return wait + jitter
}

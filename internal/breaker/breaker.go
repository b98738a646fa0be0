// Package breaker wraps each venue's backfill REST calls in a circuit
// breaker so a failing venue's retries don't dominate the backfill
// service. Grounded directly on the teacher's infra/breakers/breakers.go
// (same Settings shape: 3 consecutive failures or >5% of ≥20 requests
// trips it). Execute passes gobreaker's `any` result through
// unchanged; callers type-assert it.
package breaker

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker wraps one venue's outbound calls.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// New constructs a Breaker named for the venue it guards. onTrip, if
// non-nil, is called whenever the breaker transitions into the open
// state (a fresh trip, not every already-open rejection).
func New(name string, onTrip func()) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	if onTrip != nil {
		st.OnStateChange = func(name string, from, to cb.State) {
			if to == cb.StateOpen {
				onTrip()
			}
		}
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state name, for telemetry.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

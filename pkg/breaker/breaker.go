package breaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// Breaker wraps a circuit breaker around outbound calls to a single
// upstream (broker API, Telegram). Trips on 3 consecutive failures or
// a >5% failure ratio once 20 requests have been observed.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// StateChangeFunc is invoked on breaker state transitions.
type StateChangeFunc func(name string, from, to gobreaker.State)

// New creates a breaker with standard trip thresholds.
func New(name string, onChange StateChangeFunc) *Breaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	if onChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from, to)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

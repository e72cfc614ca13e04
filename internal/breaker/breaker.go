// Package breaker implements a per-origin circuit breaker (spec §4.5),
// grounded on the threshold-based Closed/Open/Half-Open state shape
// used by the scheduler's CircuitBreaker in itskum47-FluxForge's
// control-plane scheduler (other_examples), adapted to origin keying
// and the probe semantics spec.md requires.
package breaker

import (
	"net/url"
	"sync"
	"time"
)

// State is one of the three circuit states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type originState struct {
	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
	probeInFlight bool
}

// Registry tracks breaker state per origin (scheme+host+port).
type Registry struct {
	threshold   int
	openFor     time.Duration
	mu          sync.Mutex
	origins     map[string]*originState
}

// New creates a Registry with the given failure threshold F and open
// duration T.
func New(threshold int, openFor time.Duration) *Registry {
	if threshold < 1 {
		threshold = 1
	}
	return &Registry{
		threshold: threshold,
		openFor:   openFor,
		origins:   make(map[string]*originState),
	}
}

// Origin extracts the scheme+host+port key a URL belongs to.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := u.Host
	if host == "" {
		return rawURL
	}
	return u.Scheme + "://" + host
}

func (r *Registry) get(origin string) *originState {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.origins[origin]
	if !ok {
		o = &originState{state: Closed}
		r.origins[origin] = o
	}
	return o
}

// Allow reports whether a new attempt against origin may proceed, and
// if so whether this attempt is the single Half-Open probe. Callers
// that receive probe=true must call RecordSuccess/RecordFailure to
// release the probe slot.
func (r *Registry) Allow(origin string) (allowed bool, probe bool) {
	o := r.get(origin)
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Closed:
		return true, false
	case Open:
		if time.Since(o.openedAt) >= r.openFor {
			o.state = HalfOpen
			o.probeInFlight = true
			return true, true
		}
		return false, false
	case HalfOpen:
		if !o.probeInFlight {
			o.probeInFlight = true
			return true, true
		}
		return false, false
	default:
		return true, false
	}
}

// RecordSuccess resets the breaker for origin to Closed.
func (r *Registry) RecordSuccess(origin string) {
	o := r.get(origin)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = Closed
	o.failureCount = 0
	o.probeInFlight = false
}

// RecordFailure registers a failed attempt, tripping the breaker to
// Open once the threshold is reached, or re-opening it if the failure
// came from a Half-Open probe.
func (r *Registry) RecordFailure(origin string) {
	o := r.get(origin)
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case HalfOpen:
		o.state = Open
		o.openedAt = time.Now()
		o.failureCount = 0
		o.probeInFlight = false
	case Closed:
		o.failureCount++
		if o.failureCount >= r.threshold {
			o.state = Open
			o.openedAt = time.Now()
			o.failureCount = 0
		}
	case Open:
		// Already open; nothing to do.
	}
}

// State returns the current state of origin, for diagnostics and tests.
func (r *Registry) State(origin string) State {
	o := r.get(origin)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

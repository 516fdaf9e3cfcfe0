package upstream

import (
	"sync"
	"time"
)

// Limiter bounds outbound call volume per logical endpoint with a sliding
// window of request timestamps, and honors upstream-declared throttling via
// an explicit backoff deadline. State is process-local and resets on
// restart: the upstream's own server-side limits remain the source of
// truth; this is a client-side courtesy layer, not a correctness mechanism.
type Limiter struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState

	maxRequests    int
	window         time.Duration
	defaultBackoff time.Duration

	now func() time.Time
}

type endpointState struct {
	timestamps   []time.Time
	backoffUntil time.Time
}

// NewLimiter creates a sliding-window limiter
func NewLimiter(maxRequests int, window, defaultBackoff time.Duration) *Limiter {
	return &Limiter{
		endpoints:      make(map[string]*endpointState),
		maxRequests:    maxRequests,
		window:         window,
		defaultBackoff: defaultBackoff,
		now:            time.Now,
	}
}

// CanMakeRequest reports whether an outbound call to endpoint is allowed
// now. When denied, retryAfter is the wait until the call would be allowed:
// the remaining backoff if the endpoint is backing off, otherwise the time
// until the oldest windowed request slides out.
func (l *Limiter) CanMakeRequest(endpoint string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state := l.state(endpoint)

	if now.Before(state.backoffUntil) {
		return false, state.backoffUntil.Sub(now)
	}

	l.prune(state, now)

	if len(state.timestamps) >= l.maxRequests {
		oldest := state.timestamps[0]
		return false, oldest.Add(l.window).Sub(now)
	}

	return true, 0
}

// RecordRequest appends the current timestamp to the endpoint's window
func (l *Limiter) RecordRequest(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.state(endpoint)
	now := l.now()
	l.prune(state, now)
	state.timestamps = append(state.timestamps, now)
}

// Record429 puts the endpoint into backoff. A zero retryAfter applies the
// configured default. The backoff overrides any shorter window-based denial
// until it passes.
func (l *Limiter) Record429(endpoint string, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = l.defaultBackoff
	}

	state := l.state(endpoint)
	until := l.now().Add(retryAfter)
	if until.After(state.backoffUntil) {
		state.backoffUntil = until
	}
}

func (l *Limiter) state(endpoint string) *endpointState {
	s, ok := l.endpoints[endpoint]
	if !ok {
		s = &endpointState{}
		l.endpoints[endpoint] = s
	}
	return s
}

// prune drops timestamps older than the window
func (l *Limiter) prune(state *endpointState, now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(state.timestamps) && !state.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		state.timestamps = append(state.timestamps[:0], state.timestamps[i:]...)
	}
}

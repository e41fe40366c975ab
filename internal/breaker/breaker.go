// Copyright 2025 James Ross

// Package breaker implements a sliding-window circuit breaker: one
// instance guards calls to a single remote peer, tripping Open once its
// recent failure rate crosses a threshold and admitting a single probe
// per cooldown while HalfOpen.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit states a breaker cycles through.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

// sample is one recorded call outcome, aged out of the window once
// older than the breaker's configured duration.
type sample struct {
	at time.Time
	ok bool
}

// CircuitBreaker tracks a sliding window of recent call outcomes for one
// destination (a federation peer, in this repo) and derives Open/
// HalfOpen/Closed from the resulting failure rate.
type CircuitBreaker struct {
	mu sync.Mutex

	state          State
	lastTransition time.Time
	samples        []sample

	window           time.Duration
	cooldown         time.Duration
	failureThresh    float64
	minSamples       int
	halfOpenInFlight bool
}

// New constructs a Closed breaker. window bounds how far back Record
// looks when computing the failure rate; cooldown is how long Open
// holds before a single HalfOpen probe is admitted; failureThresh is the
// [0,1] failure rate that trips Closed -> Open; minSamples is the
// minimum window population before the rate is trusted.
func New(window, cooldown time.Duration, failureThresh float64, minSamples int) *CircuitBreaker {
	return &CircuitBreaker{
		state:          Closed,
		lastTransition: time.Now(),
		window:         window,
		cooldown:       cooldown,
		failureThresh:  failureThresh,
		minSamples:     minSamples,
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call to the guarded peer may proceed right
// now. Closed always allows; Open allows only after cooldown has
// elapsed, at which point it transitions to HalfOpen and admits exactly
// one caller as the probe; HalfOpen allows only that single in-flight
// probe and rejects the rest until Record resolves it.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Open:
		if time.Since(cb.lastTransition) < cb.cooldown {
			return false
		}
		cb.state = HalfOpen
		cb.lastTransition = time.Now()
		cb.halfOpenInFlight = true
		return true
	case HalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// Record logs a call outcome and re-evaluates the breaker's state. In
// HalfOpen, the single probe's outcome decides the transition directly;
// elsewhere, the state follows the sliding-window failure rate once
// enough samples have accumulated.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.appendSample(now, ok)

	total := len(cb.samples)
	if total < cb.minSamples {
		if cb.state == HalfOpen {
			cb.resolveHalfOpenProbe(ok, now)
		}
		return
	}

	switch cb.state {
	case Closed:
		if cb.failureRate() >= cb.failureThresh {
			cb.state = Open
			cb.lastTransition = now
		}
	case HalfOpen:
		cb.resolveHalfOpenProbe(ok, now)
	case Open:
		// Transition out of Open happens in Allow, not here.
	}
}

func (cb *CircuitBreaker) appendSample(now time.Time, ok bool) {
	cutoff := now.Add(-cb.window)
	kept := cb.samples[:0]
	for _, s := range cb.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	cb.samples = append(kept, sample{at: now, ok: ok})
}

func (cb *CircuitBreaker) failureRate() float64 {
	fails := 0
	for _, s := range cb.samples {
		if !s.ok {
			fails++
		}
	}
	return float64(fails) / float64(len(cb.samples))
}

func (cb *CircuitBreaker) resolveHalfOpenProbe(ok bool, now time.Time) {
	if ok {
		cb.state = Closed
	} else {
		cb.state = Open
	}
	cb.halfOpenInFlight = false
	cb.lastTransition = now
}

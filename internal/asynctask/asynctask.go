// Copyright 2025 James Ross

// Package asynctask implements the async task runtime: a
// minimal cooperative lock + condition-variable primitive used by
// asynchronous-attached services to gate concurrent access to their
// job set, plus the IsServiceLive predicate.
package asynctask

import "sync"

// Sync is the per-ASYNCHRONOUS_ATTACHED-service primitive. It exposes
// acquire/release/wait-while/signal built directly on sync.Mutex and
// sync.Cond rather than a hand-rolled channel scheme.
type Sync struct {
	mu        sync.Mutex
	cond      *sync.Cond
	cancelled bool
}

// NewSync constructs a Sync primitive.
func NewSync() *Sync {
	s := &Sync{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire locks the service for exclusive access.
func (s *Sync) Acquire() { s.mu.Lock() }

// Release unlocks the service and wakes any goroutines blocked in
// WaitWhile.
func (s *Sync) Release() {
	s.mu.Unlock()
	s.cond.Broadcast()
}

// WaitWhile blocks, releasing the lock, until predicate returns false or
// the Sync is cancelled. The caller must hold the lock (i.e. have
// called Acquire) before calling WaitWhile, and holds it again on
// return.
func (s *Sync) WaitWhile(predicate func() bool) {
	for predicate() && !s.cancelled {
		s.cond.Wait()
	}
}

// Signal wakes one goroutine blocked in WaitWhile; used by a service's
// custom background-task code to announce progress.
func (s *Sync) Signal() { s.cond.Signal() }

// Cancel sets the cancellation flag and wakes every waiter, so
// background tasks can observe it and transition their jobs to ERROR.
func (s *Sync) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Cancelled reports whether Cancel has been called.
func (s *Sync) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// LiveJobSet is the minimal surface asynctask needs from a ServiceJobSet
// to evaluate IsServiceLive, avoiding an import cycle with internal/job.
type LiveJobSet interface {
	IsLive() bool
}

// IsServiceLive reports true iff some job in the set has status
// PENDING or STARTED.
func IsServiceLive(jobs LiveJobSet) bool {
	return jobs.IsLive()
}

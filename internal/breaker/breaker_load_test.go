// Copyright 2025 James Ross
package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeerBreakerAdmitsOneConcurrentProbePerCycle models the situation
// federation.Client actually produces: many goroutines dispatching to
// the same down peer call Allow concurrently right as the breaker
// leaves cooldown. Only one of them may be the HalfOpen probe, or a
// still-failing peer gets hammered by every waiting caller at once.
func TestPeerBreakerAdmitsOneConcurrentProbePerCycle(t *testing.T) {
	peer := New(20*time.Millisecond, 50*time.Millisecond, 0.5, 2)
	require.Equal(t, Closed, peer.State())

	peer.Record(false)
	peer.Record(false)
	require.Equal(t, Open, peer.State())

	admittedOnce := func() int {
		time.Sleep(60 * time.Millisecond) // clear cooldown into HalfOpen
		const concurrentDispatchers = 100
		var wg sync.WaitGroup
		var mu sync.Mutex
		admitted := 0
		wg.Add(concurrentDispatchers)
		for i := 0; i < concurrentDispatchers; i++ {
			go func() {
				defer wg.Done()
				if peer.Allow() {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		return admitted
	}

	assert.Equal(t, 1, admittedOnce(), "exactly one dispatcher should win the HalfOpen probe")
	peer.Record(false)
	assert.Equal(t, Open, peer.State(), "a failed probe reopens the breaker")

	assert.Equal(t, 1, admittedOnce(), "the next cooldown cycle should again admit exactly one probe")
	peer.Record(true)
	assert.Equal(t, Closed, peer.State(), "a successful probe closes the breaker")
}

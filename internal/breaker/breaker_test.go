// Copyright 2025 James Ross
package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeerBreakerTripsAndRecoversAfterCooldown exercises the transitions
// a federation client relies on for one flaky peer: enough failures trip
// the breaker Open, Allow refuses calls until the cooldown elapses, and
// a successful probe in HalfOpen closes it again.
func TestPeerBreakerTripsAndRecoversAfterCooldown(t *testing.T) {
	peer := New(2*time.Second, 200*time.Millisecond, 0.5, 2)
	require.Equal(t, Closed, peer.State())

	peer.Record(false)
	peer.Record(false)
	assert.Equal(t, Open, peer.State())
	assert.False(t, peer.Allow(), "should not admit a call before cooldown elapses")

	time.Sleep(250 * time.Millisecond)
	assert.True(t, peer.Allow(), "should admit exactly one probe once HalfOpen")

	peer.Record(true)
	assert.Equal(t, Closed, peer.State(), "a successful probe should close the breaker")
}

// Copyright 2025 James Ross
package providerstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkVisitedPreventsDoubleDispatch(t *testing.T) {
	tbl := New()
	assert.False(t, tbl.Contains("https://peer", "blast"))
	assert.True(t, tbl.MarkVisited("https://peer", "blast"))
	assert.True(t, tbl.Contains("https://peer", "blast"))
	assert.False(t, tbl.MarkVisited("https://peer", "blast"))
}

func TestSeedFromRequestServers(t *testing.T) {
	tbl := Seed([]Pair{{ServerURI: "https://peer", ServiceName: "blast"}})
	assert.True(t, tbl.Contains("https://peer", "blast"))
	assert.False(t, tbl.MarkVisited("https://peer", "blast"))
}

func TestPairsSnapshot(t *testing.T) {
	tbl := New()
	tbl.MarkVisited("a", "svc1")
	tbl.MarkVisited("b", "svc2")
	assert.Len(t, tbl.Pairs(), 2)
}

func TestSeedWithoutServiceNameWildcardsTheURI(t *testing.T) {
	// A request-level seed that names only the server a prior hop came
	// from, not the specific service dispatched there, must still block
	// every service at that server.
	tbl := Seed([]Pair{{ServerURI: "https://peer"}})
	assert.True(t, tbl.Contains("https://peer", "blast"))
	assert.True(t, tbl.Contains("https://peer", "any-other-service"))
	assert.False(t, tbl.Contains("https://other-peer", "blast"))
}

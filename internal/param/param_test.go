// Copyright 2025 James Ross
package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndBounds(t *testing.T) {
	p, err := Allocate(TypeSignedInt, "limit", "Limit", "max results", LevelBasic, int64(5), int64(5))
	require.NoError(t, err)
	require.NoError(t, p.SetBounds(int64(1), int64(10)))

	err = p.SetCurrent(int64(100))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "limit", verr.Parameter)

	require.NoError(t, p.SetCurrent(int64(7)))
	assert.Equal(t, int64(7), p.GetCurrent())
}

func TestAddOptionUniqueness(t *testing.T) {
	p, err := Allocate(TypeString, "mode", "Mode", "", LevelBasic, "fast", "fast")
	require.NoError(t, err)
	require.NoError(t, p.AddOption("fast", "Fast mode"))
	require.NoError(t, p.AddOption("slow", "Slow mode"))
	require.Error(t, p.AddOption("fast", "duplicate"))
}

func TestSetCurrentRejectsUndeclaredOption(t *testing.T) {
	p, err := Allocate(TypeString, "mode", "Mode", "", LevelBasic, "fast", "fast")
	require.NoError(t, err)
	require.NoError(t, p.AddOption("fast", "Fast mode"))
	require.NoError(t, p.AddOption("slow", "Slow mode"))

	err = p.SetCurrent("turbo")
	require.Error(t, err)
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	p, err := Allocate(TypeSignedInt, "limit", "Limit", "max results", LevelBasic, int64(5), int64(7))
	require.NoError(t, err)
	require.NoError(t, p.SetBounds(int64(1), int64(10)))

	for _, concise := range []bool{true, false} {
		raw, err := ToJSON(p, concise)
		require.NoError(t, err)

		got, err := FromJSON(raw, nil)
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
		assert.Equal(t, p.GrassrootsType, got.GrassrootsType)
		assert.Equal(t, p.CurrentValue, got.CurrentValue)
		assert.Equal(t, p.Bounds.Min, got.Bounds.Min)
		assert.Equal(t, p.Bounds.Max, got.Bounds.Max)
	}
}

func TestFromJSONUnsetIsNil(t *testing.T) {
	p, err := Allocate(TypeString, "text", "Text", "", LevelBasic, nil, nil)
	require.NoError(t, err)
	raw, err := ToJSON(p, false)
	require.NoError(t, err)

	got, err := FromJSON(raw, nil)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentValue)
}

func TestCustomDecoderConsultedFirst(t *testing.T) {
	p, err := Allocate(TypeJSON, "blob", "Blob", "", LevelBasic, nil, nil)
	require.NoError(t, err)
	raw, err := ToJSON(p, false)
	require.NoError(t, err)

	called := false
	decoder := func(raw []byte) (*Parameter, bool, error) {
		called = true
		return nil, false, nil
	}
	_, err = FromJSON(raw, decoder)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestSetGroupsAndUniqueNames(t *testing.T) {
	s := NewSet()
	p1, _ := Allocate(TypeString, "a", "A", "", LevelBasic, "", "")
	p2, _ := Allocate(TypeString, "b", "B", "", LevelBasic, "", "")

	require.NoError(t, s.AddParameter("core", p1))
	require.NoError(t, s.AddParameter("core", p2))
	_, err := s.AddGroup("core")
	require.Error(t, err)

	assert.Len(t, s.Parameters(), 2)
	assert.Equal(t, p1, s.Get("a"))
	assert.Nil(t, s.Get("missing"))
}

func TestAddParameterRejectsDuplicateNameAcrossGroups(t *testing.T) {
	s := NewSet()
	p1, _ := Allocate(TypeString, "a", "A", "", LevelBasic, "", "")
	p2, _ := Allocate(TypeString, "a", "A again", "", LevelBasic, "", "")

	require.NoError(t, s.AddParameter("core", p1))
	err := s.AddParameter("other", p2)
	require.Error(t, err)
	assert.Len(t, s.Parameters(), 1)
}

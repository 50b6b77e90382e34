package dispatch

import (
	"testing"

	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestSharedPicker_RespectsMaxInFlight(t *testing.T) {
	p := SharedPicker{}
	candidates := []Candidate{{MessageID: 1}, {MessageID: 2}}

	c, ok := p.Pick(candidates, ConsumerInfo{InFlightCount: 0, MaxInFlight: 1}, nil)
	require.True(t, ok)
	require.Equal(t, types.MessageID(1), c.MessageID)

	_, ok = p.Pick(candidates, ConsumerInfo{InFlightCount: 1, MaxInFlight: 1}, nil)
	require.False(t, ok)
}

func TestSharedPicker_EmptyCandidates(t *testing.T) {
	p := SharedPicker{}
	_, ok := p.Pick(nil, ConsumerInfo{MaxInFlight: 5}, nil)
	require.False(t, ok)
}

func TestKeyRing_OwnerIsStableAcrossLookups(t *testing.T) {
	ring := NewKeyRing()
	ring.Add(1)
	ring.Add(2)
	ring.Add(3)

	key := []byte("order-42")
	owner, ok := ring.Owner(key)
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		again, ok := ring.Owner(key)
		require.True(t, ok)
		require.Equal(t, owner, again)
	}
}

func TestKeyRing_EmptyRingHasNoOwner(t *testing.T) {
	ring := NewKeyRing()
	_, ok := ring.Owner([]byte("k"))
	require.False(t, ok)
}

func TestKeyRing_RemoveReassignsToSuccessor(t *testing.T) {
	ring := NewKeyRing()
	ring.Add(1)
	ring.Add(2)

	key := []byte("sticky-key")
	owner, ok := ring.Owner(key)
	require.True(t, ok)

	ring.Remove(owner)
	newOwner, ok := ring.Owner(key)
	require.True(t, ok)
	require.NotEqual(t, owner, newOwner)
}

func TestBuildKeySharedCandidates_BlocksOnInFlightKey(t *testing.T) {
	ordered := []Candidate{
		{MessageID: 1, Key: []byte("a")},
		{MessageID: 2, Key: []byte("b")},
		{MessageID: 3, Key: []byte("a")},
	}
	inFlight := map[string]bool{"a": true}

	out := BuildKeySharedCandidates(ordered, inFlight)
	require.Len(t, out, 1)
	require.Equal(t, types.MessageID(2), out[0].MessageID)
}

func TestBuildKeySharedCandidates_OnlyHeadOfEachKey(t *testing.T) {
	ordered := []Candidate{
		{MessageID: 1, Key: []byte("a")},
		{MessageID: 2, Key: []byte("a")},
		{MessageID: 3, Key: []byte("b")},
	}
	out := BuildKeySharedCandidates(ordered, nil)
	require.Len(t, out, 2)
	require.Equal(t, types.MessageID(1), out[0].MessageID)
	require.Equal(t, types.MessageID(3), out[1].MessageID)
}

func TestKeySharedPicker_OnlyOwnerReceives(t *testing.T) {
	ring := NewKeyRing()
	ring.Add(1)
	ring.Add(2)

	key := []byte("k")
	owner, _ := ring.Owner(key)
	other := types.ConsumerID(1)
	if owner == 1 {
		other = 2
	}

	p := KeySharedPicker{}
	candidates := []Candidate{{MessageID: 1, Key: key}}

	_, ok := p.Pick(candidates, ConsumerInfo{ID: other, MaxInFlight: 10}, ring)
	require.False(t, ok)

	c, ok := p.Pick(candidates, ConsumerInfo{ID: owner, MaxInFlight: 10}, ring)
	require.True(t, ok)
	require.Equal(t, types.MessageID(1), c.MessageID)
}

func TestForDiscipline(t *testing.T) {
	require.IsType(t, SharedPicker{}, ForDiscipline(types.Shared))
	require.IsType(t, MulticastPicker{}, ForDiscipline(types.Multicast))
	require.IsType(t, KeySharedPicker{}, ForDiscipline(types.KeyShared))
}

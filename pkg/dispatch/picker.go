package dispatch

import "github.com/cuemby/pulsar-rust-broker/pkg/types"

// Candidate is one undelivered message eligible for dispatch
// consideration, already in (ledger, message id) order.
type Candidate struct {
	LedgerIndex int
	LedgerID    types.LedgerID
	MessageID   types.MessageID
	Key         []byte
}

// ConsumerInfo is the subset of consumer state a Picker needs.
type ConsumerInfo struct {
	ID            types.ConsumerID
	InFlightCount int
	MaxInFlight   int
}

// Picker selects the next candidate for a consumer, or reports none
// available. Implementations must not mutate candidates.
type Picker interface {
	Pick(candidates []Candidate, consumer ConsumerInfo, ring *KeyRing) (Candidate, bool)
}

// ForDiscipline returns the stateless Picker for d. KeyShared callers
// must also maintain a *KeyRing (see NewKeyRing) and pass it to Pick.
func ForDiscipline(d types.Discipline) Picker {
	switch d {
	case types.Multicast:
		return MulticastPicker{}
	case types.KeyShared:
		return KeySharedPicker{}
	default:
		return SharedPicker{}
	}
}

// SharedPicker hands the oldest ready candidate to any consumer under
// its max-in-flight limit. No key affinity.
type SharedPicker struct{}

func (SharedPicker) Pick(candidates []Candidate, consumer ConsumerInfo, _ *KeyRing) (Candidate, bool) {
	if consumer.InFlightCount >= consumer.MaxInFlight || len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// MulticastPicker treats candidates as already scoped to one consumer's
// own queue (the engine maintains one queue per consumer for this
// discipline) and hands out the oldest entry in it.
type MulticastPicker struct{}

func (MulticastPicker) Pick(candidates []Candidate, consumer ConsumerInfo, _ *KeyRing) (Candidate, bool) {
	if consumer.InFlightCount >= consumer.MaxInFlight || len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// KeySharedPicker hands out the first candidate whose key hashes into
// this consumer's ring range. Candidates must already be pre-filtered
// to one eligible (head-of-key) entry per key by the caller; see
// BuildKeySharedCandidates.
type KeySharedPicker struct{}

func (KeySharedPicker) Pick(candidates []Candidate, consumer ConsumerInfo, ring *KeyRing) (Candidate, bool) {
	if consumer.InFlightCount >= consumer.MaxInFlight || ring == nil {
		return Candidate{}, false
	}
	for _, c := range candidates {
		owner, ok := ring.Owner(c.Key)
		if ok && owner == consumer.ID {
			return c, true
		}
	}
	return Candidate{}, false
}

// BuildKeySharedCandidates filters an (ledger, message id)-ordered
// candidate list down to the eligible head of each key's queue: a key
// with an outstanding in-flight message contributes no candidate, and
// only the first (oldest) undelivered message for each remaining key is
// offered, preserving per-key message-id order per spec §4.4.
func BuildKeySharedCandidates(ordered []Candidate, inFlightKeys map[string]bool) []Candidate {
	seen := make(map[string]bool, len(ordered))
	out := make([]Candidate, 0, len(ordered))
	for _, c := range ordered {
		k := string(c.Key)
		if inFlightKeys[k] || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

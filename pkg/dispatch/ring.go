package dispatch

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

const vnodesPerConsumer = 64

type ringEntry struct {
	hash     uint64
	consumer types.ConsumerID
}

// KeyRing is a consistent-hash ring over a KeyShared subscription's
// registered consumers. It is rebuilt wholesale on every Add/Remove,
// which is cheap at the consumer-churn rates this broker expects (far
// below per-message rates).
type KeyRing struct {
	mu      sync.RWMutex
	members map[types.ConsumerID]bool
	entries []ringEntry
}

// NewKeyRing returns an empty ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{members: make(map[types.ConsumerID]bool)}
}

// Add registers consumer on the ring, rebuilding it.
func (r *KeyRing) Add(consumer types.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[consumer] {
		return
	}
	r.members[consumer] = true
	r.rebuildLocked()
}

// Remove drops consumer from the ring, rebuilding it. Its key range is
// implicitly reassigned to its ring successor since ownership is
// recomputed from the remaining members on every lookup.
func (r *KeyRing) Remove(consumer types.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.members[consumer] {
		return
	}
	delete(r.members, consumer)
	r.rebuildLocked()
}

func (r *KeyRing) rebuildLocked() {
	entries := make([]ringEntry, 0, len(r.members)*vnodesPerConsumer)
	for c := range r.members {
		for v := 0; v < vnodesPerConsumer; v++ {
			h := xxhash.Sum64String(strconv.FormatUint(uint64(c), 10) + "#" + strconv.Itoa(v))
			entries = append(entries, ringEntry{hash: h, consumer: c})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].hash < entries[j].hash })
	r.entries = entries
}

// Owner returns the consumer that key hashes to, or false if the ring
// is empty.
func (r *KeyRing) Owner(key []byte) (types.ConsumerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return 0, false
	}
	h := xxhash.Sum64(key)
	idx := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].hash >= h })
	if idx == len(r.entries) {
		idx = 0
	}
	return r.entries[idx].consumer, true
}

// Members returns the currently registered consumer ids.
func (r *KeyRing) Members() []types.ConsumerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ConsumerID, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}

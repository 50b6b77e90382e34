package partition

import (
	"sync"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/dispatch"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// ConsumerState is a registered reader's mutable bookkeeping, shared by
// reference across every partition Engine of its subscription's topic
// so that max-in-flight is enforced cluster-of-partitions-wide, not
// per-partition.
type ConsumerState struct {
	mu sync.Mutex

	id           types.ConsumerID
	subscription types.SubscriptionID
	maxInFlight  int

	inFlightCount int
	registeredAt  time.Time
	lastActivity  time.Time
}

func newConsumerState(id types.ConsumerID, sub types.SubscriptionID, maxInFlight int) *ConsumerState {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	now := time.Now()
	return &ConsumerState{id: id, subscription: sub, maxInFlight: maxInFlight, registeredAt: now, lastActivity: now}
}

// Info returns the snapshot dispatch.Picker implementations consult.
func (c *ConsumerState) Info() dispatch.ConsumerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dispatch.ConsumerInfo{ID: c.id, InFlightCount: c.inFlightCount, MaxInFlight: c.maxInFlight}
}

func (c *ConsumerState) incInFlight() {
	c.mu.Lock()
	c.inFlightCount++
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *ConsumerState) releaseInFlight(n int) {
	c.mu.Lock()
	c.inFlightCount -= n
	if c.inFlightCount < 0 {
		c.inFlightCount = 0
	}
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// touch records activity without otherwise changing in-flight accounting,
// for poll attempts that found nothing to deliver.
func (c *ConsumerState) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// IdleSince reports how long it has been since the consumer's last
// activity, used by the disconnect-grace sweep (default 30s, spec §5).
func (c *ConsumerState) IdleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

// subscriptionRuntime is the topic-scoped, cross-partition state for one
// subscription: its registered consumers and, for KeyShared, the
// consistent-hash ring over them.
type subscriptionRuntime struct {
	mu         sync.Mutex
	discipline types.Discipline
	ring       *dispatch.KeyRing
	consumers  map[types.ConsumerID]*ConsumerState
}

func newSubscriptionRuntime(discipline types.Discipline) *subscriptionRuntime {
	rt := &subscriptionRuntime{discipline: discipline, consumers: make(map[types.ConsumerID]*ConsumerState)}
	if discipline == types.KeyShared {
		rt.ring = dispatch.NewKeyRing()
	}
	return rt
}

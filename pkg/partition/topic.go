package partition

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/dispatch"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
)

// dispatchWaitBound is the suspension point spec §5 names for "(c)
// dispatch waiting for available work": a bounded wait, not a long-poll.
// NextForConsumer blocks at most this long past an empty round-robin pass
// before giving up and reporting Empty.
const dispatchWaitBound = 50 * time.Millisecond

// Topic fans a subscription's consumer-facing operations out across
// every partition engine this node owns for it. Ordering and locking
// stay partition-local (Engine); Topic only adds the cross-partition
// round-robin and the shared per-consumer max-in-flight accounting the
// HTTP surface's topic+subscription-scoped API requires.
type Topic struct {
	id       types.TopicID
	engines  map[types.PartitionID]*Engine
	order    []types.PartitionID
	rrCursor uint64

	// wakeups is the registry every owned engine of this topic broadcasts
	// publish/nack/timeout signals on (the engines share one instance, set
	// from the first engine attached), letting NextForConsumer wait across
	// every partition instead of just the one it happened to poll last.
	wakeups *wakeup.Registry[types.SubscriptionID]

	subs map[types.SubscriptionID]*subscriptionRuntime
}

// NewTopic returns an empty Topic; call AddPartition and AddSubscription
// before use.
func NewTopic(id types.TopicID) *Topic {
	return &Topic{
		id:      id,
		engines: make(map[types.PartitionID]*Engine),
		subs:    make(map[types.SubscriptionID]*subscriptionRuntime),
	}
}

// AddPartition attaches an owned partition's engine.
func (t *Topic) AddPartition(id types.PartitionID, e *Engine) {
	t.engines[id] = e
	t.order = append(t.order, id)
	if t.wakeups == nil {
		t.wakeups = e.Wakeups()
	}
}

// AddSubscription registers a subscription's cross-partition runtime
// (consumer set, key-shared ring).
func (t *Topic) AddSubscription(sub *types.Subscription) {
	t.subs[sub.ID] = newSubscriptionRuntime(sub.Discipline)
}

// RegisterConsumer adds consumerID (already allocated by the caller,
// spec §9b's server-assigned integer) to subID's runtime and every
// owned partition's per-ledger state.
func (t *Topic) RegisterConsumer(subID types.SubscriptionID, consumerID types.ConsumerID, maxInFlight int) error {
	rt, ok := t.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}
	rt.mu.Lock()
	if _, exists := rt.consumers[consumerID]; exists {
		rt.mu.Unlock()
		return brokererr.Conflict("consumer %d already registered", consumerID)
	}
	cs := newConsumerState(consumerID, subID, maxInFlight)
	rt.consumers[consumerID] = cs
	if rt.ring != nil {
		rt.ring.Add(consumerID)
	}
	rt.mu.Unlock()

	for _, e := range t.engines {
		if err := e.AttachConsumer(subID, consumerID); err != nil {
			return err
		}
	}
	metrics.ConsumersTotal.WithLabelValues(strconv.FormatUint(uint64(subID), 10)).Inc()
	return nil
}

// UnregisterConsumer removes consumerID from subID, releasing its
// leases back to undelivered on every owned partition.
func (t *Topic) UnregisterConsumer(ctx context.Context, subID types.SubscriptionID, consumerID types.ConsumerID) error {
	rt, ok := t.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}
	rt.mu.Lock()
	if _, ok := rt.consumers[consumerID]; !ok {
		rt.mu.Unlock()
		return brokererr.NotFound("consumer %d", consumerID)
	}
	delete(rt.consumers, consumerID)
	if rt.ring != nil {
		rt.ring.Remove(consumerID)
	}
	rt.mu.Unlock()

	for _, e := range t.engines {
		if err := e.DetachConsumer(ctx, subID, consumerID); err != nil {
			return err
		}
	}
	metrics.ConsumersTotal.WithLabelValues(strconv.FormatUint(uint64(subID), 10)).Dec()
	return nil
}

// NextForConsumer polls each owned partition in round-robin order,
// returning the first lease any of them can offer. If the first pass
// finds nothing, it waits up to dispatchWaitBound for a publish/nack/
// timeout on any owned partition to signal new work (spec §5's "(c)
// dispatch waiting for available work" suspension point) before trying
// once more and giving up.
func (t *Topic) NextForConsumer(ctx context.Context, subID types.SubscriptionID, consumerID types.ConsumerID) (types.MessageLease, bool, error) {
	rt, ok := t.subs[subID]
	if !ok {
		return types.MessageLease{}, false, brokererr.NotFound("subscription %d", subID)
	}
	rt.mu.Lock()
	cs, ok := rt.consumers[consumerID]
	ring := rt.ring
	rt.mu.Unlock()
	if !ok {
		return types.MessageLease{}, false, brokererr.NotFound("consumer %d", consumerID)
	}

	lease, ok, err := t.pollOnce(ctx, subID, cs, ring)
	if err != nil || ok {
		return lease, ok, err
	}
	if t.wakeups == nil {
		cs.touch()
		return types.MessageLease{}, false, nil
	}

	wait := t.wakeups.For(subID).Wait()
	select {
	case <-wait:
	case <-time.After(dispatchWaitBound):
	case <-ctx.Done():
		cs.touch()
		return types.MessageLease{}, false, ctx.Err()
	}

	lease, ok, err = t.pollOnce(ctx, subID, cs, ring)
	if !ok {
		cs.touch()
	}
	return lease, ok, err
}

// pollOnce makes one round-robin pass over every owned partition,
// returning the first lease any of them can offer.
func (t *Topic) pollOnce(ctx context.Context, subID types.SubscriptionID, cs *ConsumerState, ring *dispatch.KeyRing) (types.MessageLease, bool, error) {
	n := len(t.order)
	if n == 0 {
		return types.MessageLease{}, false, nil
	}
	start := int(atomic.AddUint64(&t.rrCursor, 1)) % n
	for i := 0; i < n; i++ {
		pid := t.order[(start+i)%n]
		lease, ok, err := t.engines[pid].NextForSubscription(ctx, subID, cs.Info(), ring)
		if err != nil {
			return types.MessageLease{}, false, err
		}
		if ok {
			cs.incInFlight()
			return lease, true, nil
		}
	}
	return types.MessageLease{}, false, nil
}

// Ack routes refs to their owning partitions' Ack, then releases the
// consumer's in-flight accounting.
func (t *Topic) Ack(ctx context.Context, subID types.SubscriptionID, consumerID types.ConsumerID, refs []types.MessageRef) error {
	return t.settle(ctx, subID, consumerID, refs, func(e *Engine, refs []types.MessageRef) error {
		return e.Ack(ctx, subID, consumerID, refs)
	})
}

// Nack routes refs to their owning partitions' Nack, then releases the
// consumer's in-flight accounting.
func (t *Topic) Nack(ctx context.Context, subID types.SubscriptionID, consumerID types.ConsumerID, refs []types.MessageRef) error {
	return t.settle(ctx, subID, consumerID, refs, func(e *Engine, refs []types.MessageRef) error {
		return e.Nack(ctx, subID, consumerID, refs)
	})
}

func (t *Topic) settle(_ context.Context, subID types.SubscriptionID, consumerID types.ConsumerID, refs []types.MessageRef, apply func(*Engine, []types.MessageRef) error) error {
	rt, ok := t.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}
	rt.mu.Lock()
	cs, ok := rt.consumers[consumerID]
	rt.mu.Unlock()
	if !ok {
		return brokererr.NotFound("consumer %d", consumerID)
	}

	byPartition := make(map[types.PartitionID][]types.MessageRef)
	for _, ref := range refs {
		byPartition[ref.Partition] = append(byPartition[ref.Partition], ref)
	}
	for pid, group := range byPartition {
		e, ok := t.engines[pid]
		if !ok {
			return brokererr.NotFound("partition %d", pid)
		}
		if err := apply(e, group); err != nil {
			return err
		}
	}
	cs.releaseInFlight(len(refs))
	return nil
}

// ScanTimeouts runs scan_timeouts on every owned partition. Intended to
// be called on a ticker at types.DefaultTimeoutScanInterval.
func (t *Topic) ScanTimeouts(ctx context.Context, now time.Time) error {
	for _, e := range t.engines {
		if err := e.ScanTimeouts(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

// SweepIdleConsumers releases leases for consumers idle past grace and
// unregisters them, tolerating brief network blips per spec §5.
func (t *Topic) SweepIdleConsumers(ctx context.Context, now time.Time, grace time.Duration) error {
	for subID, rt := range t.subs {
		rt.mu.Lock()
		var idle []types.ConsumerID
		for id, cs := range rt.consumers {
			if cs.IdleSince(now) > grace {
				idle = append(idle, id)
			}
		}
		rt.mu.Unlock()
		for _, id := range idle {
			if err := t.UnregisterConsumer(ctx, subID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Engine returns the engine for a partition this topic owns, or false.
func (t *Topic) Engine(id types.PartitionID) (*Engine, bool) {
	e, ok := t.engines[id]
	return e, ok
}

// Partitions returns the ids of every partition owned by this node for
// this topic, in a stable order.
func (t *Topic) Partitions() []types.PartitionID {
	out := make([]types.PartitionID, len(t.order))
	copy(out, t.order)
	return out
}

// Subscriptions returns the ids of every subscription this topic tracks
// a cross-partition runtime for.
func (t *Topic) Subscriptions() []types.SubscriptionID {
	out := make([]types.SubscriptionID, 0, len(t.subs))
	for id := range t.subs {
		out = append(out, id)
	}
	return out
}

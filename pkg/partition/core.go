package partition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// Core is the broker-process-wide umbrella: the catalog, every Topic
// this node serves, and the consumer-id allocator. It is the entry
// point cmd/broker and pkg/httpapi hold.
type Core struct {
	mu sync.RWMutex

	node    types.NodeID
	catalog *catalog.Catalog
	topics  map[types.TopicID]*Topic

	nextConsumerID uint64
}

// NewCore returns an empty Core bound to cat. Engines are attached
// afterward with AddEngine, one per partition this node owns.
func NewCore(node types.NodeID, cat *catalog.Catalog) *Core {
	return &Core{node: node, catalog: cat, topics: make(map[types.TopicID]*Topic)}
}

// AddEngine wires a bootstrapped partition Engine into Core, lazily
// constructing the owning Topic's subscription runtimes from the
// catalog the first time any of its partitions is added.
func (c *Core) AddEngine(topicID types.TopicID, partitionID types.PartitionID, e *Engine) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	top, ok := c.topics[topicID]
	if !ok {
		topicObj, err := c.catalog.Topic(topicID)
		if err != nil {
			return err
		}
		top = NewTopic(topicID)
		for _, subID := range topicObj.Subscriptions {
			sub, err := c.catalog.Subscription(subID)
			if err != nil {
				return err
			}
			top.AddSubscription(sub)
		}
		c.topics[topicID] = top
	}
	top.AddPartition(partitionID, e)
	return nil
}

// Topic returns the Topic wrapper for id, or NotFound if this node owns
// no partitions for it.
func (c *Core) Topic(id types.TopicID) (*Topic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.topics[id]
	if !ok {
		return nil, brokererr.NotFound("topic %d", id)
	}
	return t, nil
}

// Publish appends a message to the named partition. requestID, if
// non-empty, dedupes retried publishes within types.RequestDedupWindow
// (spec §5, Cancellation).
func (c *Core) Publish(ctx context.Context, topicID types.TopicID, partitionID types.PartitionID, requestID string, key []byte, timestampMs int64, attrs map[string]string) (types.MessageRef, uint64, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return types.MessageRef{}, 0, err
	}
	e, ok := t.Engine(partitionID)
	if !ok {
		return types.MessageRef{}, 0, brokererr.NotFound("partition %d", partitionID)
	}
	return e.Publish(ctx, requestID, key, timestampMs, attrs)
}

// RegisterConsumer allocates a server-assigned consumer id (spec §9b)
// and registers it on subID.
func (c *Core) RegisterConsumer(topicID types.TopicID, subID types.SubscriptionID, maxInFlight int) (types.ConsumerID, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return 0, err
	}
	id := types.ConsumerID(atomic.AddUint64(&c.nextConsumerID, 1))
	if err := t.RegisterConsumer(subID, id, maxInFlight); err != nil {
		return 0, err
	}
	return id, nil
}

// UnregisterConsumer tears down a consumer's registration and leases.
func (c *Core) UnregisterConsumer(ctx context.Context, topicID types.TopicID, subID types.SubscriptionID, consumerID types.ConsumerID) error {
	t, err := c.Topic(topicID)
	if err != nil {
		return err
	}
	return t.UnregisterConsumer(ctx, subID, consumerID)
}

// NextForConsumer returns the next lease for consumerID on subID, or
// false if nothing is currently available.
func (c *Core) NextForConsumer(ctx context.Context, topicID types.TopicID, subID types.SubscriptionID, consumerID types.ConsumerID) (types.MessageLease, bool, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return types.MessageLease{}, false, err
	}
	return t.NextForConsumer(ctx, subID, consumerID)
}

// Ack acknowledges refs for consumerID on subID.
func (c *Core) Ack(ctx context.Context, topicID types.TopicID, subID types.SubscriptionID, consumerID types.ConsumerID, refs []types.MessageRef) error {
	t, err := c.Topic(topicID)
	if err != nil {
		return err
	}
	return t.Ack(ctx, subID, consumerID, refs)
}

// Nack releases refs for consumerID on subID back to undelivered.
func (c *Core) Nack(ctx context.Context, topicID types.TopicID, subID types.SubscriptionID, consumerID types.ConsumerID, refs []types.MessageRef) error {
	t, err := c.Topic(topicID)
	if err != nil {
		return err
	}
	return t.Nack(ctx, subID, consumerID, refs)
}

// RunMaintenance runs the timeout scan and the idle-consumer sweep on
// every owned topic, once, at the cadences spec §4.3/§5 name
// (DefaultTimeoutScanInterval and DefaultConsumerGrace respectively).
// Callers drive this from a ticker loop (see cmd/broker).
func (c *Core) RunMaintenance(ctx context.Context, now time.Time) error {
	c.mu.RLock()
	topics := make([]*Topic, 0, len(c.topics))
	for _, t := range c.topics {
		topics = append(topics, t)
	}
	c.mu.RUnlock()

	for _, t := range topics {
		if err := t.ScanTimeouts(ctx, now); err != nil {
			return err
		}
		if err := t.SweepIdleConsumers(ctx, now, types.DefaultConsumerGrace); err != nil {
			return err
		}
	}
	return nil
}

// Catalog returns the bound catalog, used by admin/httpapi projections.
func (c *Core) Catalog() *catalog.Catalog { return c.catalog }

// Node returns this broker's own node id.
func (c *Core) Node() types.NodeID { return c.node }

// Topics returns the ids of every topic this node owns at least one
// partition for.
func (c *Core) Topics() []types.TopicID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.TopicID, 0, len(c.topics))
	for id := range c.topics {
		out = append(out, id)
	}
	return out
}

// TopicPartitions returns the ids of every partition this node owns for
// topic. Part of metrics.Source.
func (c *Core) TopicPartitions(topic types.TopicID) []types.PartitionID {
	t, err := c.Topic(topic)
	if err != nil {
		return nil
	}
	return t.Partitions()
}

// PartitionLedgerCounts reports ledger-state counts for one partition.
// Part of metrics.Source.
func (c *Core) PartitionLedgerCounts(topic types.TopicID, partitionID types.PartitionID) []metrics.LedgerCount {
	t, err := c.Topic(topic)
	if err != nil {
		return nil
	}
	e, ok := t.Engine(partitionID)
	if !ok {
		return nil
	}
	return e.LedgerCounts()
}

// PartitionSubscriptionDepths reports undelivered/in-flight depths per
// subscription for one partition. Part of metrics.Source.
func (c *Core) PartitionSubscriptionDepths(topic types.TopicID, partitionID types.PartitionID) map[types.SubscriptionID]metrics.SubscriptionDepth {
	t, err := c.Topic(topic)
	if err != nil {
		return nil
	}
	e, ok := t.Engine(partitionID)
	if !ok {
		return nil
	}
	return e.SubscriptionDepths()
}

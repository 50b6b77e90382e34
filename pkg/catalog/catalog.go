package catalog

import (
	"sort"
	"sync"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// Catalog is the in-memory, copy-on-write view of the static topology.
// Lookups never block on the store; mutations go through the store first
// (so a restart always sees them) and then replace the relevant map.
type Catalog struct {
	mu sync.RWMutex

	store Store

	nodes         map[types.NodeID]*types.Node
	topics        map[types.TopicID]*types.Topic
	partitions    map[types.PartitionID]*types.Partition
	subscriptions map[types.SubscriptionID]*types.Subscription
}

// Load builds a Catalog by reading every entity from store.
func Load(store Store) (*Catalog, error) {
	c := &Catalog{
		store:         store,
		nodes:         make(map[types.NodeID]*types.Node),
		topics:        make(map[types.TopicID]*types.Topic),
		partitions:    make(map[types.PartitionID]*types.Partition),
		subscriptions: make(map[types.SubscriptionID]*types.Subscription),
	}

	nodes, err := store.ListNodes()
	if err != nil {
		return nil, brokererr.StorageFailure(err, "load nodes")
	}
	for _, n := range nodes {
		c.nodes[n.ID] = n
	}

	topics, err := store.ListTopics()
	if err != nil {
		return nil, brokererr.StorageFailure(err, "load topics")
	}
	for _, t := range topics {
		c.topics[t.ID] = t
	}

	partitions, err := store.ListPartitions()
	if err != nil {
		return nil, brokererr.StorageFailure(err, "load partitions")
	}
	for _, p := range partitions {
		c.partitions[p.ID] = p
	}

	subs, err := store.ListSubscriptions()
	if err != nil {
		return nil, brokererr.StorageFailure(err, "load subscriptions")
	}
	for _, s := range subs {
		c.subscriptions[s.ID] = s
	}

	return c, nil
}

func (c *Catalog) Node(id types.NodeID) (*types.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	if !ok {
		return nil, brokererr.NotFound("node %d", id)
	}
	return n, nil
}

func (c *Catalog) Topic(id types.TopicID) (*types.Topic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.topics[id]
	if !ok {
		return nil, brokererr.NotFound("topic %d", id)
	}
	return t, nil
}

func (c *Catalog) TopicByName(name string) (*types.Topic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.topics {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, brokererr.NotFound("topic %q", name)
}

func (c *Catalog) Partition(id types.PartitionID) (*types.Partition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.partitions[id]
	if !ok {
		return nil, brokererr.NotFound("partition %d", id)
	}
	return p, nil
}

func (c *Catalog) Subscription(id types.SubscriptionID) (*types.Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subscriptions[id]
	if !ok {
		return nil, brokererr.NotFound("subscription %d", id)
	}
	return s, nil
}

func (c *Catalog) Topics() []*types.Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Topic, 0, len(c.topics))
	for _, t := range c.topics {
		out = append(out, t)
	}
	return out
}

func (c *Catalog) Nodes() []*types.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

// PartitionsByTopic returns every partition belonging to topic, ordered
// by id.
func (c *Catalog) PartitionsByTopic(topic types.TopicID) []*types.Partition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*types.Partition
	for _, p := range c.partitions {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubscriptionsByTopic returns every subscription registered on topic.
func (c *Catalog) SubscriptionsByTopic(topic types.TopicID) []*types.Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*types.Subscription
	for _, s := range c.subscriptions {
		if s.Topic == topic {
			out = append(out, s)
		}
	}
	return out
}

// CreateTopic persists and installs a new topic. Administrative events
// only: callers apply this after the corresponding TopicCreated log event
// is durable.
func (c *Catalog) CreateTopic(t *types.Topic) error {
	if err := c.store.CreateTopic(t); err != nil {
		return brokererr.StorageFailure(err, "persist topic %d", t.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[types.TopicID]*types.Topic, len(c.topics)+1)
	for k, v := range c.topics {
		next[k] = v
	}
	next[t.ID] = t
	c.topics = next
	return nil
}

// CreatePartition persists and installs a new partition.
func (c *Catalog) CreatePartition(p *types.Partition) error {
	if err := c.store.CreatePartition(p); err != nil {
		return brokererr.StorageFailure(err, "persist partition %d", p.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[types.PartitionID]*types.Partition, len(c.partitions)+1)
	for k, v := range c.partitions {
		next[k] = v
	}
	next[p.ID] = p
	c.partitions = next
	return nil
}

// ReassignPartitionOwner rewrites a partition's owning node, the
// migration hand-off hook spec §9c leaves unspecified beyond the ledger
// lifecycle. The network choreography that would drive this in a real
// cluster is out of the core's scope.
func (c *Catalog) ReassignPartitionOwner(id types.PartitionID, owner types.NodeID) error {
	c.mu.RLock()
	p, ok := c.partitions[id]
	c.mu.RUnlock()
	if !ok {
		return brokererr.NotFound("partition %d", id)
	}
	updated := *p
	updated.OwnerNode = owner
	if err := c.store.UpdatePartition(&updated); err != nil {
		return brokererr.StorageFailure(err, "persist partition %d", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[types.PartitionID]*types.Partition, len(c.partitions))
	for k, v := range c.partitions {
		next[k] = v
	}
	next[id] = &updated
	c.partitions = next
	return nil
}

// CreateSubscription persists and installs a new subscription, also
// attaching it to its topic's subscription list.
func (c *Catalog) CreateSubscription(s *types.Subscription) error {
	if err := c.store.CreateSubscription(s); err != nil {
		return brokererr.StorageFailure(err, "persist subscription %d", s.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[types.SubscriptionID]*types.Subscription, len(c.subscriptions)+1)
	for k, v := range c.subscriptions {
		next[k] = v
	}
	next[s.ID] = s
	c.subscriptions = next

	if t, ok := c.topics[s.Topic]; ok {
		updated := *t
		updated.Subscriptions = append(append([]types.SubscriptionID(nil), t.Subscriptions...), s.ID)
		nextTopics := make(map[types.TopicID]*types.Topic, len(c.topics))
		for k, v := range c.topics {
			nextTopics[k] = v
		}
		nextTopics[t.ID] = &updated
		c.topics = nextTopics
	}
	return nil
}

// CreateNode persists and installs a new node.
func (c *Catalog) CreateNode(n *types.Node) error {
	if err := c.store.CreateNode(n); err != nil {
		return brokererr.StorageFailure(err, "persist node %d", n.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[types.NodeID]*types.Node, len(c.nodes)+1)
	for k, v := range c.nodes {
		next[k] = v
	}
	next[n.ID] = n
	c.nodes = next
	return nil
}

func (c *Catalog) Close() error {
	return c.store.Close()
}

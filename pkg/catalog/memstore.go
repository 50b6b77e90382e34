package catalog

import "github.com/cuemby/pulsar-rust-broker/pkg/types"

// MemStore is an in-memory Store used by tests that don't need a
// persisted snapshot file.
type MemStore struct {
	nodes         []*types.Node
	topics        map[types.TopicID]*types.Topic
	partitions    map[types.PartitionID]*types.Partition
	subscriptions []*types.Subscription
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		topics:     make(map[types.TopicID]*types.Topic),
		partitions: make(map[types.PartitionID]*types.Partition),
	}
}

func (s *MemStore) CreateNode(n *types.Node) error {
	s.nodes = append(s.nodes, n)
	return nil
}

func (s *MemStore) ListNodes() ([]*types.Node, error) { return s.nodes, nil }

func (s *MemStore) CreateTopic(t *types.Topic) error {
	s.topics[t.ID] = t
	return nil
}

func (s *MemStore) UpdateTopic(t *types.Topic) error { return s.CreateTopic(t) }

func (s *MemStore) ListTopics() ([]*types.Topic, error) {
	out := make([]*types.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	return out, nil
}

func (s *MemStore) CreatePartition(p *types.Partition) error {
	s.partitions[p.ID] = p
	return nil
}

func (s *MemStore) UpdatePartition(p *types.Partition) error { return s.CreatePartition(p) }

func (s *MemStore) ListPartitions() ([]*types.Partition, error) {
	out := make([]*types.Partition, 0, len(s.partitions))
	for _, p := range s.partitions {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemStore) CreateSubscription(sub *types.Subscription) error {
	s.subscriptions = append(s.subscriptions, sub)
	return nil
}

func (s *MemStore) ListSubscriptions() ([]*types.Subscription, error) {
	return s.subscriptions, nil
}

func (s *MemStore) Close() error { return nil }

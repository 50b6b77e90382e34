package catalog

import "github.com/cuemby/pulsar-rust-broker/pkg/types"

// Store is the persistence interface backing a Catalog snapshot. It is
// deliberately narrow — CRUD on the four static entity kinds — mirroring
// the shape of a config/topology store rather than a general database.
type Store interface {
	CreateNode(n *types.Node) error
	ListNodes() ([]*types.Node, error)

	CreateTopic(t *types.Topic) error
	UpdateTopic(t *types.Topic) error
	ListTopics() ([]*types.Topic, error)

	CreatePartition(p *types.Partition) error
	UpdatePartition(p *types.Partition) error
	ListPartitions() ([]*types.Partition, error)

	CreateSubscription(s *types.Subscription) error
	ListSubscriptions() ([]*types.Subscription, error)

	Close() error
}

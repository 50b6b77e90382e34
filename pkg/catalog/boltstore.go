package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes         = []byte("nodes")
	bucketTopics        = []byte("topics")
	bucketPartitions    = []byte("partitions")
	bucketSubscriptions = []byte("subscriptions")
)

// BoltStore persists the catalog snapshot in a single bbolt file,
// rewritten atomically on every administrative event (bbolt's own
// transaction commit provides the atomicity spec §6 asks for).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the snapshot file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open snapshot: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketTopics, bucketPartitions, bucketSubscriptions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func u64key(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

func (s *BoltStore) CreateNode(n *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Put(u64key(uint64(n.ID)), data)
	})
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var out []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			out = append(out, &n)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) CreateTopic(t *types.Topic) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTopics).Put(u64key(uint64(t.ID)), data)
	})
}

func (s *BoltStore) UpdateTopic(t *types.Topic) error { return s.CreateTopic(t) }

func (s *BoltStore) ListTopics() ([]*types.Topic, error) {
	var out []*types.Topic
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTopics).ForEach(func(k, v []byte) error {
			var t types.Topic
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) CreatePartition(p *types.Partition) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPartitions).Put(u64key(uint64(p.ID)), data)
	})
}

func (s *BoltStore) UpdatePartition(p *types.Partition) error { return s.CreatePartition(p) }

func (s *BoltStore) ListPartitions() ([]*types.Partition, error) {
	var out []*types.Partition
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartitions).ForEach(func(k, v []byte) error {
			var p types.Partition
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) CreateSubscription(sub *types.Subscription) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSubscriptions).Put(u64key(uint64(sub.ID)), data)
	})
}

func (s *BoltStore) ListSubscriptions() ([]*types.Subscription, error) {
	var out []*types.Subscription
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).ForEach(func(k, v []byte) error {
			var sub types.Subscription
			if err := json.Unmarshal(v, &sub); err != nil {
				return err
			}
			out = append(out, &sub)
			return nil
		})
	})
	return out, err
}

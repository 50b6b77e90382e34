package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NodeID, TopicID, PartitionID, LedgerID, SubscriptionID, and ConsumerID
// identify catalog objects. MessageID is unique within (topic, partition,
// ledger) only, not cluster-wide.
type (
	NodeID         uint64
	TopicID        uint64
	PartitionID    uint64
	LedgerID       uint64
	SubscriptionID uint64
	ConsumerID     uint64
	MessageID      uint64
)

// MessageRef is the tuple that uniquely names a message: topic, partition,
// ledger, message. Its string form "t:p:l:m" is the wire-level ack key.
type MessageRef struct {
	Topic     TopicID
	Partition PartitionID
	Ledger    LedgerID
	Message   MessageID
}

// String renders the "topic:partition:ledger:message" wire form used as
// both the publish response's message_ref and the ack/nack request's
// message_ack_key.
func (r MessageRef) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", r.Topic, r.Partition, r.Ledger, r.Message)
}

// ParseMessageRef parses the "topic:partition:ledger:message" wire form.
func ParseMessageRef(s string) (MessageRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return MessageRef{}, fmt.Errorf("message ref %q: want 4 colon-separated fields, got %d", s, len(parts))
	}
	nums := make([]uint64, 4)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return MessageRef{}, fmt.Errorf("message ref %q: field %d: %w", s, i, err)
		}
		nums[i] = n
	}
	return MessageRef{
		Topic:     TopicID(nums[0]),
		Partition: PartitionID(nums[1]),
		Ledger:    LedgerID(nums[2]),
		Message:   MessageID(nums[3]),
	}, nil
}

// Node is a broker process registered in the cluster, loaded once at
// startup from the catalog store.
type Node struct {
	ID   NodeID
	Host string
	Port int
}

// Topic is static once created: a fixed partition count and a set of
// subscriptions. Mutation only happens through administrative log events.
type Topic struct {
	ID             TopicID
	Name           string
	PartitionCount int
	Subscriptions  []SubscriptionID
}

// Partition is the unit of parallelism within a topic. OwnerNode is
// mutable via migration; everything else is fixed at creation.
type Partition struct {
	ID        PartitionID
	Topic     TopicID
	OwnerNode NodeID
}

// LedgerState tracks a ledger through its one-way lifecycle:
// Open -> Closed -> Drained. A partition's ledgers never regress.
type LedgerState int

const (
	LedgerOpen LedgerState = iota
	LedgerClosed
	LedgerDrained
)

func (s LedgerState) String() string {
	switch s {
	case LedgerOpen:
		return "open"
	case LedgerClosed:
		return "closed"
	case LedgerDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Discipline selects a subscription's dispatch policy.
type Discipline int

const (
	Shared Discipline = iota
	Multicast
	KeyShared
)

func (d Discipline) String() string {
	switch d {
	case Shared:
		return "shared"
	case Multicast:
		return "multicast"
	case KeyShared:
		return "key_shared"
	default:
		return "unknown"
	}
}

// Subscription is static except for its per-(partition, ledger) dynamic
// state, which lives in the partition engine, not here.
type Subscription struct {
	ID         SubscriptionID
	Topic      TopicID
	Name       string
	Discipline Discipline
	AckTimeout time.Duration
}

// Message is immutable once appended. Key is nil when the publisher
// supplied none, meaning "no consumer affinity".
type Message struct {
	ID            MessageID
	Key           []byte
	PublishTimeMs int64
	Attributes    map[string]string
	DeliveryCount int
}

// Consumer is a registered reader on a subscription. MaxInFlight bounds
// how many leases it may hold concurrently.
type Consumer struct {
	ID            ConsumerID
	Subscription  SubscriptionID
	RegisteredAt  time.Time
	MaxInFlight   int
	LastActivity  time.Time
	InFlightCount int
}

// InFlightEntry is a lease: a message handed to a consumer, awaiting ack
// before Deadline. Attempt counts every delivery, including redeliveries.
type InFlightEntry struct {
	Message   MessageID
	Consumer  ConsumerID
	Deadline  time.Time
	Attempt   int
}

// MessageLease is what next_for_consumer hands back on success.
type MessageLease struct {
	Ref           MessageRef
	Message       Message
	DeliveryCount int
	Deadline      time.Time
}

const (
	// DefaultAckTimeout is used when a subscription does not override it.
	DefaultAckTimeout = 30 * time.Second

	// DefaultTimeoutScanInterval is the cadence of scan_timeouts.
	DefaultTimeoutScanInterval = 100 * time.Millisecond

	// DefaultConsumerGrace is how long a disconnected consumer's leases
	// stay assigned before being released back to undelivered.
	DefaultConsumerGrace = 30 * time.Second

	// MaxAttributeBytes bounds the serialized size of a message's
	// attribute map.
	MaxAttributeBytes = 16 * 1024

	// RequestDedupWindow bounds how long a publish request id is
	// remembered for at-most-one-append deduplication (spec §5,
	// Cancellation).
	RequestDedupWindow = 2 * time.Minute
)

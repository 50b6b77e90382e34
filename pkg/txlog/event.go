package txlog

import "github.com/cuemby/pulsar-rust-broker/pkg/types"

// EventKind is the closed set of event kinds the log may carry, per spec §4.2.
type EventKind uint16

const (
	EventTopicCreated EventKind = iota + 1
	EventPartitionCreated
	EventSubscriptionCreated
	EventLedgerOpened
	EventLedgerClosed
	EventLedgerDrained
	EventMessagePublished
	EventMessageDelivered
	EventMessageAcked
	EventMessageNacked
	EventMessageTimedOut
	EventConsumerRegistered
	EventConsumerUnregistered
	EventTrimmed
)

func (k EventKind) String() string {
	switch k {
	case EventTopicCreated:
		return "TopicCreated"
	case EventPartitionCreated:
		return "PartitionCreated"
	case EventSubscriptionCreated:
		return "SubscriptionCreated"
	case EventLedgerOpened:
		return "LedgerOpened"
	case EventLedgerClosed:
		return "LedgerClosed"
	case EventLedgerDrained:
		return "LedgerDrained"
	case EventMessagePublished:
		return "MessagePublished"
	case EventMessageDelivered:
		return "MessageDelivered"
	case EventMessageAcked:
		return "MessageAcked"
	case EventMessageNacked:
		return "MessageNacked"
	case EventMessageTimedOut:
		return "MessageTimedOut"
	case EventConsumerRegistered:
		return "ConsumerRegistered"
	case EventConsumerUnregistered:
		return "ConsumerUnregistered"
	case EventTrimmed:
		return "Trimmed"
	default:
		return "Unknown"
	}
}

// MessagePublishedPayload is the payload of an EventMessagePublished event.
type MessagePublishedPayload struct {
	Ref        types.MessageRef  `json:"ref"`
	Key        []byte            `json:"key,omitempty"`
	TimestampMs int64            `json:"ts"`
	Attributes map[string]string `json:"attrs,omitempty"`
}

// MessageDeliveredPayload is the payload of an EventMessageDelivered event.
type MessageDeliveredPayload struct {
	Ref          types.MessageRef `json:"ref"`
	Subscription types.SubscriptionID `json:"subscription"`
	Consumer     types.ConsumerID     `json:"consumer"`
	Attempt      int                  `json:"attempt"`
	DeadlineMs   int64                `json:"deadline_ms"`
}

// MessageAckPayload covers MessageAcked, MessageNacked, and
// MessageTimedOut, which all share the same (ref, subscription) shape.
type MessageAckPayload struct {
	Ref          types.MessageRef      `json:"ref"`
	Subscription types.SubscriptionID `json:"subscription"`
}

// TrimmedPayload is the payload of an EventTrimmed event.
type TrimmedPayload struct {
	UpToLSN uint64 `json:"up_to_lsn"`
}

// CatalogPayload covers TopicCreated, PartitionCreated,
// SubscriptionCreated, ConsumerRegistered, and ConsumerUnregistered: all
// are administrative and carry a JSON-encoded catalog object.
type CatalogPayload struct {
	Op   string `json:"op"`
	Data []byte `json:"data"`
}

// LedgerPayload is the payload of LedgerOpened/LedgerClosed/LedgerDrained.
type LedgerPayload struct {
	Partition types.PartitionID `json:"partition"`
	Ledger    types.LedgerID    `json:"ledger"`
}

// Event is one durable record in the transaction log. LSN and TimestampMs
// are assigned by the log at append time; callers only set Kind and
// Payload.
type Event struct {
	LSN         uint64    `json:"lsn"`
	TimestampMs int64     `json:"timestamp_ms"`
	Kind        EventKind `json:"kind"`
	Payload     []byte    `json:"payload"`
}

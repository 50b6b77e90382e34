/*
Package types defines the broker's domain model: the identifiers and
static/dynamic shapes shared by the catalog, transaction log, partition
engine, dispatch engine, and admin views.

# Identity

NodeID, TopicID, PartitionID, LedgerID, SubscriptionID, and ConsumerID are
opaque 64-bit handles. MessageID is unique only within a single (topic,
partition, ledger) triple; a MessageRef names a message cluster-wide.

# Static vs dynamic

Node, Topic, Partition, and Subscription hold only the parts of their
state that are fixed at creation time or changed by administrative events.
Per-(partition, ledger, subscription) dynamic state — undelivered queues,
in-flight tables, ack cursors — is owned by the partition engine and is
intentionally absent from these types.
*/
package types

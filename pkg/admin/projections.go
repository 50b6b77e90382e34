package admin

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/partition"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// CatalogSnapshot is the flat dump behind GET /v1/admin/catalog: every
// topic, partition, subscription, and node this process's catalog knows
// about, as plain values safe to marshal directly.
type CatalogSnapshot struct {
	Nodes         []*types.Node         `json:"nodes"`
	Topics        []*types.Topic        `json:"topics"`
	Partitions    []*types.Partition    `json:"partitions"`
	Subscriptions []*types.Subscription `json:"subscriptions"`
}

// DumpCatalog reads every entity core's catalog holds. There is no
// single LSN to pin here since the catalog is itself the source of
// truth for topology, not a log projection.
func DumpCatalog(core *partition.Core) CatalogSnapshot {
	cat := core.Catalog()
	snap := CatalogSnapshot{Nodes: cat.Nodes(), Topics: cat.Topics()}
	for _, t := range snap.Topics {
		snap.Partitions = append(snap.Partitions, cat.PartitionsByTopic(t.ID)...)
		snap.Subscriptions = append(snap.Subscriptions, cat.SubscriptionsByTopic(t.ID)...)
	}
	sort.Slice(snap.Topics, func(i, j int) bool { return snap.Topics[i].ID < snap.Topics[j].ID })
	sort.Slice(snap.Partitions, func(i, j int) bool { return snap.Partitions[i].ID < snap.Partitions[j].ID })
	sort.Slice(snap.Subscriptions, func(i, j int) bool { return snap.Subscriptions[i].ID < snap.Subscriptions[j].ID })
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	return snap
}

// LedgerView is the per-ledger projection behind the admin ledger
// listing: state and size always, message bodies only when requested.
type LedgerView struct {
	partition.LedgerSummary
	Messages []types.Message `json:"messages,omitempty"`
}

// LedgersForPartition lists every ledger partition (topicID, partitionID)
// has ever opened, in creation order. When detailed is true each ledger's
// full message list is attached; otherwise only the summary counts are.
func LedgersForPartition(core *partition.Core, topicID types.TopicID, partitionID types.PartitionID, detailed bool) ([]LedgerView, error) {
	e, err := engineFor(core, topicID, partitionID)
	if err != nil {
		return nil, err
	}
	summaries := e.Snapshot()
	out := make([]LedgerView, len(summaries))
	for i, s := range summaries {
		out[i] = LedgerView{LedgerSummary: s}
		if detailed {
			msgs, err := e.LedgerMessages(s.ID)
			if err != nil {
				return nil, err
			}
			out[i].Messages = msgs
		}
	}
	return out, nil
}

// InFlightListing is the per-subscription in-flight projection, grouped
// by the partition the lease lives on since a subscription spans every
// partition of its topic.
type InFlightListing struct {
	Subscription types.SubscriptionID        `json:"subscription"`
	Entries      []partition.InFlightEntryView `json:"entries"`
}

// InFlightForSubscription lists every outstanding lease on subID across
// all partitions of topicID that this node owns.
func InFlightForSubscription(core *partition.Core, topicID types.TopicID, subID types.SubscriptionID) (InFlightListing, error) {
	top, err := core.Topic(topicID)
	if err != nil {
		return InFlightListing{}, err
	}
	listing := InFlightListing{Subscription: subID}
	for _, pid := range top.Partitions() {
		e, ok := top.Engine(pid)
		if !ok {
			continue
		}
		entries, err := e.InFlightSnapshot(subID)
		if err != nil {
			return InFlightListing{}, err
		}
		listing.Entries = append(listing.Entries, entries...)
	}
	sort.Slice(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i].Ref, listing.Entries[j].Ref
		if a.Partition != b.Partition {
			return a.Partition < b.Partition
		}
		return a.Message < b.Message
	})
	return listing, nil
}

// LedgerMessageIDs lists the ids of every message ledgerID currently
// holds, for the compact .../ledger/{id}/messageids admin endpoint.
func LedgerMessageIDs(core *partition.Core, topicID types.TopicID, partitionID types.PartitionID, ledgerID types.LedgerID) ([]types.MessageID, error) {
	e, err := engineFor(core, topicID, partitionID)
	if err != nil {
		return nil, err
	}
	msgs, err := e.LedgerMessages(ledgerID)
	if err != nil {
		return nil, err
	}
	ids := make([]types.MessageID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids, nil
}

// Message looks up a single message within a ledger, for the
// .../ledger/{id}/message/{id} admin endpoint.
func Message(core *partition.Core, topicID types.TopicID, partitionID types.PartitionID, ledgerID types.LedgerID, messageID types.MessageID) (types.Message, error) {
	e, err := engineFor(core, topicID, partitionID)
	if err != nil {
		return types.Message{}, err
	}
	msgs, err := e.LedgerMessages(ledgerID)
	if err != nil {
		return types.Message{}, err
	}
	for _, m := range msgs {
		if m.ID == messageID {
			return m, nil
		}
	}
	return types.Message{}, brokererr.NotFound("message %d in ledger %d", messageID, ledgerID)
}

// UndeliveredForSubscription lists every message ref still waiting for
// delivery on subID, across all partitions of topicID this node owns, in
// ascending (partition, ledger, message) order. Backs the
// GET .../subscription/{id}/messageids admin endpoint.
func UndeliveredForSubscription(core *partition.Core, topicID types.TopicID, subID types.SubscriptionID) ([]types.MessageRef, error) {
	top, err := core.Topic(topicID)
	if err != nil {
		return nil, err
	}
	var out []types.MessageRef
	for _, pid := range top.Partitions() {
		e, ok := top.Engine(pid)
		if !ok {
			continue
		}
		refs, err := e.UndeliveredRefs(subID)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Partition != b.Partition {
			return a.Partition < b.Partition
		}
		if a.Ledger != b.Ledger {
			return a.Ledger < b.Ledger
		}
		return a.Message < b.Message
	})
	return out, nil
}

// SubscriptionMessageStatus is the per-message answer to "where does this
// message currently sit in this subscription's pipeline": undelivered,
// in flight to a consumer, or neither (already acked, or never seen).
type SubscriptionMessageStatus struct {
	Ref         types.MessageRef `json:"ref"`
	Undelivered bool             `json:"undelivered"`
	InFlight    bool             `json:"in_flight"`
	Consumer    types.ConsumerID `json:"consumer,omitempty"`
}

// MessageStatusForSubscription answers the .../subscription/{id}/message/{id}
// admin query: whether messageID is currently undelivered or in flight on
// subID, searching every partition of topicID this node owns. messageID is
// only unique within a single (topic, partition, ledger), so the first
// match across owned partitions is returned.
func MessageStatusForSubscription(core *partition.Core, topicID types.TopicID, subID types.SubscriptionID, messageID types.MessageID) (SubscriptionMessageStatus, error) {
	undelivered, err := UndeliveredForSubscription(core, topicID, subID)
	if err != nil {
		return SubscriptionMessageStatus{}, err
	}
	for _, ref := range undelivered {
		if ref.Message == messageID {
			return SubscriptionMessageStatus{Ref: ref, Undelivered: true}, nil
		}
	}

	listing, err := InFlightForSubscription(core, topicID, subID)
	if err != nil {
		return SubscriptionMessageStatus{}, err
	}
	for _, entry := range listing.Entries {
		if entry.Ref.Message == messageID {
			return SubscriptionMessageStatus{Ref: entry.Ref, InFlight: true, Consumer: entry.Consumer}, nil
		}
	}
	return SubscriptionMessageStatus{}, brokererr.NotFound("message %d on subscription %d", messageID, subID)
}

func engineFor(core *partition.Core, topicID types.TopicID, partitionID types.PartitionID) (*partition.Engine, error) {
	top, err := core.Topic(topicID)
	if err != nil {
		return nil, err
	}
	e, ok := top.Engine(partitionID)
	if !ok {
		return nil, brokererr.NotFound("partition %d", partitionID)
	}
	return e, nil
}

// LogFilter narrows a log scan to a single ledger and/or message within
// the partition's log. Zero values match everything.
type LogFilter struct {
	Ledger  types.LedgerID
	Message types.MessageID
}

func (f LogFilter) matches(ref types.MessageRef, hasRef bool) bool {
	if f.Ledger != 0 {
		if !hasRef || ref.Ledger != f.Ledger {
			return false
		}
	}
	if f.Message != 0 {
		if !hasRef || ref.Message != f.Message {
			return false
		}
	}
	return true
}

// LogEntry is one line of the admin log scan: always the envelope
// (LSN, timestamp, kind), and the decoded ref when the event kind
// carries one. Detail carries the full decoded payload, set only when
// the scan was requested with detailed=true.
type LogEntry struct {
	LSN         uint64           `json:"lsn"`
	TimestampMs int64            `json:"timestamp_ms"`
	Kind        string           `json:"kind"`
	Ref         *types.MessageRef `json:"ref,omitempty"`
	Detail      json.RawMessage  `json:"detail,omitempty"`
}

// LogScan is one page of a log scan: the entries and the LSN to pass as
// the next call's fromLSN (0 once the log is exhausted).
type LogScan struct {
	Entries []LogEntry `json:"entries"`
	NextLSN uint64     `json:"next_lsn"`
}

// ScanLog reads up to limit matching events from topicID/partitionID's
// log starting at fromLSN, per GET /v1/logs's limit/detailed/exact query
// parameters. It reads forward from fromLSN and stops early once limit
// matching entries are collected, returning the LSN right after the last
// event actually visited so pagination never re-reads skipped events.
func ScanLog(ctx context.Context, core *partition.Core, topicID types.TopicID, partitionID types.PartitionID, fromLSN uint64, limit int, filter LogFilter, detailed bool) (LogScan, error) {
	e, err := engineFor(core, topicID, partitionID)
	if err != nil {
		return LogScan{}, err
	}
	if limit <= 0 {
		limit = 100
	}

	var scan LogScan
	stop := brokererr.InvalidRequest("scan complete")
	err = e.TxLog().Stream(ctx, fromLSN, func(ev txlog.Event) error {
		scan.NextLSN = ev.LSN + 1
		entry, ref, hasRef := decodeEvent(ev, detailed)
		if filter.matches(ref, hasRef) {
			scan.Entries = append(scan.Entries, entry)
		}
		if len(scan.Entries) >= limit {
			return stop
		}
		return nil
	})
	if err != nil && err != stop {
		return LogScan{}, brokererr.StorageFailure(err, "scan log")
	}
	if len(scan.Entries) < limit {
		scan.NextLSN = 0
	}
	return scan, nil
}

// decodeEvent extracts the envelope every projection needs plus, when
// the kind carries one, the message ref used for filtering. detail is
// only populated when detailed is true, to keep compact scans cheap.
func decodeEvent(ev txlog.Event, detailed bool) (LogEntry, types.MessageRef, bool) {
	entry := LogEntry{LSN: ev.LSN, TimestampMs: ev.TimestampMs, Kind: ev.Kind.String()}
	var ref types.MessageRef
	hasRef := false

	switch ev.Kind {
	case txlog.EventMessagePublished:
		var p txlog.MessagePublishedPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			ref, hasRef = p.Ref, true
		}
	case txlog.EventMessageDelivered:
		var p txlog.MessageDeliveredPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			ref, hasRef = p.Ref, true
		}
	case txlog.EventMessageAcked, txlog.EventMessageNacked, txlog.EventMessageTimedOut:
		var p txlog.MessageAckPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			ref, hasRef = p.Ref, true
		}
	case txlog.EventLedgerOpened, txlog.EventLedgerClosed, txlog.EventLedgerDrained:
		var p txlog.LedgerPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			ref = types.MessageRef{Partition: p.Partition, Ledger: p.Ledger}
			hasRef = true
		}
	}

	if hasRef {
		r := ref
		entry.Ref = &r
	}
	if detailed {
		entry.Detail = json.RawMessage(ev.Payload)
	}
	return entry, ref, hasRef
}

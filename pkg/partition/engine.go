package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/dispatch"
	"github.com/cuemby/pulsar-rust-broker/pkg/log"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/google/uuid"
)

// subState is the per-subscription arena entry: static discipline/ack
// timeout plus one subLedgerState per ledger, index-aligned with
// Engine.ledgers.
type subState struct {
	id         types.SubscriptionID
	discipline types.Discipline
	ackTimeout time.Duration
	perLedger  []*subLedgerState
}

// Engine owns one partition's mutable state: the ledger arena and every
// attached subscription's delivery state. All mutating operations are
// serialized by mu (the "single-writer discipline" spec §5 calls for);
// there is no lock shared with any other partition.
type Engine struct {
	mu sync.Mutex

	id    types.PartitionID
	topic types.TopicID
	node  types.NodeID

	topicLabel     string
	partitionLabel string

	log     txlog.Log
	wakeups *wakeup.Registry[types.SubscriptionID]

	ledgers         []*ledger
	ledgerIndexByID map[types.LedgerID]int
	activeLedgerIdx int
	migratingTo     *types.NodeID

	subs map[types.SubscriptionID]*subState

	// dedup remembers the outcome of recently published request ids so a
	// retried publish (e.g. after a client disconnects mid-append and
	// resends) returns the original ref instead of appending again. Spec
	// §5's Cancellation clause: "at-most-one append per logical publish is
	// guaranteed by the caller's request id, which the engine deduplicates
	// within a short window."
	dedup map[string]dedupEntry
}

type dedupEntry struct {
	ref     types.MessageRef
	lsn     uint64
	expires time.Time
}

// NewEngine constructs an engine for an empty partition (no ledgers
// yet); call Bootstrap to open the first ledger or, when the log already
// holds events, to restore state from a prior run's log.
func NewEngine(id types.PartitionID, topic types.TopicID, node types.NodeID, subs []*types.Subscription, txLog txlog.Log, wakeups *wakeup.Registry[types.SubscriptionID]) *Engine {
	e := &Engine{
		id:              id,
		topic:           topic,
		node:            node,
		topicLabel:      strconv.FormatUint(uint64(topic), 10),
		partitionLabel:  strconv.FormatUint(uint64(id), 10),
		log:             txLog,
		wakeups:         wakeups,
		ledgerIndexByID: make(map[types.LedgerID]int),
		activeLedgerIdx: -1,
		subs:            make(map[types.SubscriptionID]*subState),
		dedup:           make(map[string]dedupEntry),
	}
	for _, s := range subs {
		e.subs[s.ID] = &subState{id: s.ID, discipline: s.Discipline, ackTimeout: ackTimeoutOrDefault(s.AckTimeout)}
	}
	return e
}

func ackTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return types.DefaultAckTimeout
	}
	return d
}

// Bootstrap brings the partition up: if the log already holds prior
// events (a restart) it replays them to reconstruct ledger and
// subscription state exactly as it stood at crash time; otherwise it
// opens the partition's first ledger. No-op if ledgers already exist in
// memory (idempotent, matching close_active_ledger/open_new_ledger).
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.ledgers) > 0 {
		return nil
	}
	if e.log.LastLSN() > 0 {
		if err := e.replayLocked(ctx); err != nil {
			return err
		}
		if len(e.ledgers) > 0 {
			return nil
		}
	}
	return e.openNewLedgerLocked(ctx)
}

func (e *Engine) synthesizeKey(msgID types.MessageID) []byte {
	seed := fmt.Sprintf("%d:%d:%d", e.node, e.id, msgID)
	return []byte(uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String())
}

// Publish assigns the next message id in the active ledger, durably
// records it, then enqueues it in every attached subscription's
// undelivered state. Fails with PartitionNotOwned if the active ledger
// has been closed for migration and no replacement has opened yet.
//
// If requestID is non-empty and matches a publish already completed
// within types.RequestDedupWindow, the prior ref/LSN is returned and no
// new event is appended — a retried publish (e.g. the client disconnected
// before seeing the response) is at-most-one-append, per spec §5.
func (e *Engine) Publish(ctx context.Context, requestID string, key []byte, timestampMs int64, attrs map[string]string) (types.MessageRef, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.evictExpiredDedupLocked(now)
	if requestID != "" {
		if prior, ok := e.dedup[requestID]; ok {
			return prior.ref, prior.lsn, nil
		}
	}

	if e.activeLedgerIdx < 0 {
		owner := uint64(0)
		if e.migratingTo != nil {
			owner = uint64(*e.migratingTo)
		}
		return types.MessageRef{}, 0, brokererr.PartitionNotOwned(owner, "partition %d has no active ledger", e.id)
	}

	led := e.ledgers[e.activeLedgerIdx]
	id := led.nextMessageID
	if key == nil {
		key = e.synthesizeKey(id)
	}
	if timestampMs == 0 {
		timestampMs = time.Now().UnixMilli()
	}

	ref := types.MessageRef{Topic: e.topic, Partition: e.id, Ledger: led.id, Message: id}
	payload, err := json.Marshal(txlog.MessagePublishedPayload{Ref: ref, Key: key, TimestampMs: timestampMs, Attributes: attrs})
	if err != nil {
		return types.MessageRef{}, 0, brokererr.InvalidRequest("encode publish payload: %v", err)
	}

	timer := metrics.NewTimer()
	ev, err := e.log.Append(ctx, txlog.EventMessagePublished, payload)
	timer.ObserveDuration(metrics.LogAppendDuration)
	if err != nil {
		return types.MessageRef{}, 0, brokererr.StorageFailure(err, "append MessagePublished")
	}

	led.messages = append(led.messages, types.Message{ID: id, Key: key, PublishTimeMs: timestampMs, Attributes: attrs})
	led.nextMessageID++

	for _, s := range e.subs {
		s.perLedger[e.activeLedgerIdx].enqueue(id, s.discipline)
		e.wakeups.Broadcast(s.id)
	}

	metrics.PublishesTotal.WithLabelValues(e.topicLabel, e.partitionLabel).Inc()
	if requestID != "" {
		e.dedup[requestID] = dedupEntry{ref: ref, lsn: ev.LSN, expires: now.Add(types.RequestDedupWindow)}
	}
	return ref, ev.LSN, nil
}

// evictExpiredDedupLocked drops dedup entries whose window has passed.
// Called with e.mu held.
func (e *Engine) evictExpiredDedupLocked(now time.Time) {
	for id, entry := range e.dedup {
		if now.After(entry.expires) {
			delete(e.dedup, id)
		}
	}
}

// NextForSubscription builds the candidate list for sub, asks the
// discipline's Picker to choose one, and if it does, promotes it to
// in-flight durably before returning the lease.
func (e *Engine) NextForSubscription(ctx context.Context, subID types.SubscriptionID, consumer dispatch.ConsumerInfo, ring *dispatch.KeyRing) (types.MessageLease, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, ok := e.subs[subID]
	if !ok {
		return types.MessageLease{}, false, brokererr.NotFound("subscription %d", subID)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchLatency)

	var candidates []dispatch.Candidate
	if sub.discipline == types.Multicast {
		candidates = e.multicastCandidates(sub, consumer.ID)
	} else {
		candidates = e.orderedCandidates(sub)
		if sub.discipline == types.KeyShared {
			candidates = dispatch.BuildKeySharedCandidates(candidates, e.inFlightKeys(sub))
		}
	}

	picker := dispatch.ForDiscipline(sub.discipline)
	chosen, ok := picker.Pick(candidates, consumer, ring)
	if !ok {
		return types.MessageLease{}, false, nil
	}

	state := sub.perLedger[chosen.LedgerIndex]
	led := e.ledgers[chosen.LedgerIndex]
	msg, _ := led.message(chosen.MessageID)
	attempt := msg.DeliveryCount + 1
	deadline := time.Now().Add(sub.ackTimeout)

	ref := types.MessageRef{Topic: e.topic, Partition: e.id, Ledger: led.id, Message: chosen.MessageID}
	payload, err := json.Marshal(txlog.MessageDeliveredPayload{
		Ref: ref, Subscription: subID, Consumer: consumer.ID, Attempt: attempt, DeadlineMs: deadline.UnixMilli(),
	})
	if err != nil {
		return types.MessageLease{}, false, brokererr.InvalidRequest("encode delivered payload: %v", err)
	}
	if _, err := e.log.Append(ctx, txlog.EventMessageDelivered, payload); err != nil {
		return types.MessageLease{}, false, brokererr.StorageFailure(err, "append MessageDelivered")
	}

	if sub.discipline == types.Multicast {
		q := state.consumerQueues[consumer.ID]
		state.consumerQueues[consumer.ID] = q[1:]
	} else {
		state.removeUndelivered(chosen.MessageID)
	}
	msg.DeliveryCount = attempt
	state.inFlight[chosen.MessageID] = &types.InFlightEntry{Message: chosen.MessageID, Consumer: consumer.ID, Deadline: deadline, Attempt: attempt}

	metrics.DeliveriesTotal.WithLabelValues(e.topicLabel, e.partitionLabel, strconv.FormatUint(uint64(subID), 10)).Inc()

	return types.MessageLease{Ref: ref, Message: *msg, DeliveryCount: attempt, Deadline: deadline}, true, nil
}

func (e *Engine) orderedCandidates(sub *subState) []dispatch.Candidate {
	var out []dispatch.Candidate
	for idx, state := range sub.perLedger {
		led := e.ledgers[idx]
		for _, id := range state.undelivered {
			msg, ok := led.message(id)
			if !ok {
				continue
			}
			out = append(out, dispatch.Candidate{LedgerIndex: idx, LedgerID: led.id, MessageID: id, Key: msg.Key})
		}
	}
	return out
}

func (e *Engine) multicastCandidates(sub *subState, consumer types.ConsumerID) []dispatch.Candidate {
	var out []dispatch.Candidate
	for idx, state := range sub.perLedger {
		led := e.ledgers[idx]
		for _, id := range state.consumerQueues[consumer] {
			msg, ok := led.message(id)
			if !ok {
				continue
			}
			out = append(out, dispatch.Candidate{LedgerIndex: idx, LedgerID: led.id, MessageID: id, Key: msg.Key})
		}
	}
	return out
}

func (e *Engine) inFlightKeys(sub *subState) map[string]bool {
	keys := make(map[string]bool)
	for idx, state := range sub.perLedger {
		led := e.ledgers[idx]
		for id := range state.inFlight {
			if msg, ok := led.message(id); ok {
				keys[string(msg.Key)] = true
			}
		}
	}
	return keys
}

// Ack marks refs acknowledged by consumer on subID, advancing the ack
// cursor over any contiguous prefix it closes, and evaluates whether
// the owning ledger has become fully Drained.
func (e *Engine) Ack(ctx context.Context, subID types.SubscriptionID, consumer types.ConsumerID, refs []types.MessageRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, ok := e.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}

	for _, ref := range refs {
		idx, ok := e.ledgerIndexByID[ref.Ledger]
		if !ok {
			return brokererr.NotFound("ledger %d", ref.Ledger)
		}
		state := sub.perLedger[idx]
		entry, ok := state.inFlight[ref.Message]
		if !ok {
			return brokererr.Conflict("message %d is not in flight on subscription %d", ref.Message, subID)
		}
		if entry.Consumer != consumer {
			return brokererr.Conflict("message %d is leased to consumer %d, not %d", ref.Message, entry.Consumer, consumer)
		}
		payload, err := json.Marshal(txlog.MessageAckPayload{Ref: ref, Subscription: subID})
		if err != nil {
			return brokererr.InvalidRequest("encode ack payload: %v", err)
		}
		if _, err := e.log.Append(ctx, txlog.EventMessageAcked, payload); err != nil {
			return brokererr.StorageFailure(err, "append MessageAcked")
		}
		delete(state.inFlight, ref.Message)

		if sub.discipline == types.Multicast {
			ackMulticast(state, consumer, ref.Message)
		} else {
			ackShared(state, ref.Message)
		}

		metrics.AcksTotal.WithLabelValues(e.topicLabel, e.partitionLabel, strconv.FormatUint(uint64(subID), 10)).Inc()

		if err := e.evaluateDrain(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

func ackShared(state *subLedgerState, id types.MessageID) {
	if state.ackedPending == nil {
		state.ackedPending = make(map[types.MessageID]bool)
	}
	state.ackedPending[id] = true
	for state.ackedPending[state.ackCursor+1] {
		state.ackCursor++
		delete(state.ackedPending, state.ackCursor)
	}
}

func ackMulticast(state *subLedgerState, consumer types.ConsumerID, id types.MessageID) {
	if state.consumerAckedPending == nil {
		state.consumerAckedPending = make(map[types.ConsumerID]map[types.MessageID]bool)
	}
	pending := state.consumerAckedPending[consumer]
	if pending == nil {
		pending = make(map[types.MessageID]bool)
		state.consumerAckedPending[consumer] = pending
	}
	pending[id] = true
	cursor := state.consumerAckCursors[consumer]
	for pending[cursor+1] {
		cursor++
		delete(pending, cursor)
	}
	state.consumerAckCursors[consumer] = cursor
}

// evaluateDrain checks whether the ledger at idx can transition to
// Drained: it must be Closed, with every subscription's in-flight set
// on it empty and ack cursor caught up to its last message. On
// transition it appends LedgerDrained and trims the log up to the
// oldest still-live ledger's first LSN.
func (e *Engine) evaluateDrain(ctx context.Context, idx int) error {
	led := e.ledgers[idx]
	if led.state != types.LedgerClosed {
		return nil
	}
	lastID := types.MessageID(len(led.messages))
	for _, s := range e.subs {
		state := s.perLedger[idx]
		if len(state.inFlight) > 0 {
			return nil
		}
		cursor := state.ackCursor
		if s.discipline == types.Multicast {
			cursor = state.minMulticastAckCursor()
		}
		if cursor < lastID {
			return nil
		}
	}

	payload, err := json.Marshal(txlog.LedgerPayload{Partition: e.id, Ledger: led.id})
	if err != nil {
		return brokererr.InvalidRequest("encode ledger drained payload: %v", err)
	}
	if _, err := e.log.Append(ctx, txlog.EventLedgerDrained, payload); err != nil {
		return brokererr.StorageFailure(err, "append LedgerDrained")
	}
	led.state = types.LedgerDrained

	floor := e.log.LastLSN() + 1
	for i, l := range e.ledgers {
		if i != idx && l.state != types.LedgerDrained && l.firstLSN < floor {
			floor = l.firstLSN
		}
	}
	timer := metrics.NewTimer()
	err = e.log.TrimBefore(ctx, floor)
	timer.ObserveDuration(metrics.LogTrimDuration)
	if err != nil {
		return brokererr.StorageFailure(err, "trim log")
	}
	return nil
}

// Nack releases refs back to undelivered, preserving message-id order,
// recording MessageNacked. Delivery count is not reset.
func (e *Engine) Nack(ctx context.Context, subID types.SubscriptionID, consumer types.ConsumerID, refs []types.MessageRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.release(ctx, subID, consumer, refs, txlog.EventMessageNacked); err != nil {
		return err
	}
	metrics.NacksTotal.WithLabelValues(e.topicLabel, e.partitionLabel, strconv.FormatUint(uint64(subID), 10)).Add(float64(len(refs)))
	return nil
}

func (e *Engine) release(ctx context.Context, subID types.SubscriptionID, consumer types.ConsumerID, refs []types.MessageRef, kind txlog.EventKind) error {
	sub, ok := e.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}
	for _, ref := range refs {
		idx, ok := e.ledgerIndexByID[ref.Ledger]
		if !ok {
			return brokererr.NotFound("ledger %d", ref.Ledger)
		}
		state := sub.perLedger[idx]
		entry, ok := state.inFlight[ref.Message]
		if !ok {
			return brokererr.Conflict("message %d is not in flight on subscription %d", ref.Message, subID)
		}
		if entry.Consumer != consumer {
			return brokererr.Conflict("message %d is leased to consumer %d, not %d", ref.Message, entry.Consumer, consumer)
		}
		payload, err := json.Marshal(txlog.MessageAckPayload{Ref: ref, Subscription: subID})
		if err != nil {
			return brokererr.InvalidRequest("encode release payload: %v", err)
		}
		if _, err := e.log.Append(ctx, kind, payload); err != nil {
			return brokererr.StorageFailure(err, "append %s", kind)
		}
		delete(state.inFlight, ref.Message)

		if sub.discipline == types.Multicast {
			state.reinsertConsumerQueue(consumer, ref.Message)
		} else {
			state.reinsertUndelivered(ref.Message)
		}
		e.wakeups.Broadcast(subID)
	}
	return nil
}

// ScanTimeouts finds in-flight entries with deadline <= now across every
// subscription, releases them back to undelivered, and records
// MessageTimedOut. Intended to run on a bounded cadence
// (types.DefaultTimeoutScanInterval).
func (e *Engine) ScanTimeouts(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for subID, sub := range e.subs {
		for idx, state := range sub.perLedger {
			led := e.ledgers[idx]
			var expired []types.MessageID
			for id, entry := range state.inFlight {
				if !entry.Deadline.After(now) {
					expired = append(expired, id)
				}
			}
			for _, id := range expired {
				entry := state.inFlight[id]

				ref := types.MessageRef{Topic: e.topic, Partition: e.id, Ledger: led.id, Message: id}
				payload, err := json.Marshal(txlog.MessageAckPayload{Ref: ref, Subscription: subID})
				if err != nil {
					return brokererr.InvalidRequest("encode timeout payload: %v", err)
				}
				if _, err := e.log.Append(ctx, txlog.EventMessageTimedOut, payload); err != nil {
					return brokererr.StorageFailure(err, "append MessageTimedOut")
				}
				delete(state.inFlight, id)

				if sub.discipline == types.Multicast {
					state.reinsertConsumerQueue(entry.Consumer, id)
				} else {
					state.reinsertUndelivered(id)
				}
				metrics.TimeoutsTotal.WithLabelValues(e.topicLabel, e.partitionLabel, strconv.FormatUint(uint64(subID), 10)).Inc()
				e.wakeups.Broadcast(subID)
			}
		}
	}
	return nil
}

// CloseActiveLedger closes the current active ledger for migration
// hand-off; future publishes fail with PartitionNotOwned(newOwner)
// until OpenNewLedger runs. Idempotent.
func (e *Engine) CloseActiveLedger(ctx context.Context, newOwner types.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeLedgerIdx < 0 {
		e.migratingTo = &newOwner
		return nil
	}
	led := e.ledgers[e.activeLedgerIdx]
	payload, err := json.Marshal(txlog.LedgerPayload{Partition: e.id, Ledger: led.id})
	if err != nil {
		return brokererr.InvalidRequest("encode ledger closed payload: %v", err)
	}
	if _, err := e.log.Append(ctx, txlog.EventLedgerClosed, payload); err != nil {
		return brokererr.StorageFailure(err, "append LedgerClosed")
	}
	led.state = types.LedgerClosed
	e.activeLedgerIdx = -1
	e.migratingTo = &newOwner
	return nil
}

// OpenNewLedger opens a fresh active ledger. Idempotent: a no-op if one
// is already open.
func (e *Engine) OpenNewLedger(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeLedgerIdx >= 0 {
		return nil
	}
	return e.openNewLedgerLocked(ctx)
}

func (e *Engine) openNewLedgerLocked(ctx context.Context) error {
	id := types.LedgerID(len(e.ledgers) + 1)
	payload, err := json.Marshal(txlog.LedgerPayload{Partition: e.id, Ledger: id})
	if err != nil {
		return brokererr.InvalidRequest("encode ledger opened payload: %v", err)
	}
	ev, err := e.log.Append(ctx, txlog.EventLedgerOpened, payload)
	if err != nil {
		return brokererr.StorageFailure(err, "append LedgerOpened")
	}

	led := newLedger(id, time.Now())
	led.firstLSN = ev.LSN
	idx := len(e.ledgers)
	e.ledgers = append(e.ledgers, led)
	e.ledgerIndexByID[id] = idx

	for _, s := range e.subs {
		s.perLedger = append(s.perLedger, newSubLedgerState(idx, s.discipline))
	}

	e.activeLedgerIdx = idx
	e.migratingTo = nil
	log.WithPartitionID(uint64(e.id)).Debug().Uint64("ledger", uint64(id)).Msg("opened ledger")
	return nil
}

// AttachConsumer prepares per-ledger state for a newly registered
// consumer. Only Multicast needs this: it gives the consumer its own
// empty queue on every existing ledger, future publishes append to it.
func (e *Engine) AttachConsumer(subID types.SubscriptionID, consumer types.ConsumerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}
	if sub.discipline != types.Multicast {
		return nil
	}
	for _, state := range sub.perLedger {
		state.addMulticastConsumer(consumer)
	}
	return nil
}

// DetachConsumer releases consumer's outstanding leases. For Shared and
// KeyShared, in-flight entries rejoin the shared undelivered queue in
// message-id order. Multicast has no shared queue to rejoin, so the
// consumer's own queue and in-flight set are simply discarded.
func (e *Engine) DetachConsumer(ctx context.Context, subID types.SubscriptionID, consumer types.ConsumerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[subID]
	if !ok {
		return brokererr.NotFound("subscription %d", subID)
	}

	for idx, state := range sub.perLedger {
		led := e.ledgers[idx]
		if sub.discipline == types.Multicast {
			state.removeMulticastConsumer(consumer)
			continue
		}
		var expired []types.MessageID
		for id, entry := range state.inFlight {
			if entry.Consumer == consumer {
				expired = append(expired, id)
			}
		}
		for _, id := range expired {
			ref := types.MessageRef{Topic: e.topic, Partition: e.id, Ledger: led.id, Message: id}
			payload, err := json.Marshal(txlog.MessageAckPayload{Ref: ref, Subscription: subID})
			if err != nil {
				return brokererr.InvalidRequest("encode release payload: %v", err)
			}
			if _, err := e.log.Append(ctx, txlog.EventMessageNacked, payload); err != nil {
				return brokererr.StorageFailure(err, "append MessageNacked")
			}
			delete(state.inFlight, id)
			state.reinsertUndelivered(id)
		}
		if len(expired) > 0 {
			e.wakeups.Broadcast(subID)
		}
	}
	return nil
}

// Snapshot returns a read-only view used by admin projections: ledger
// ids and states, in creation order.
func (e *Engine) Snapshot() []LedgerSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LedgerSummary, len(e.ledgers))
	for i, l := range e.ledgers {
		out[i] = LedgerSummary{ID: l.id, State: l.state, MessageCount: len(l.messages), CreatedAt: l.createdAt, FirstLSN: l.firstLSN}
	}
	return out
}

// LedgerSummary is the read-only projection of a ledger for admin views.
type LedgerSummary struct {
	ID           types.LedgerID
	State        types.LedgerState
	MessageCount int
	CreatedAt    time.Time
	FirstLSN     uint64
}

// LedgerMessages returns every message currently stored in ledgerID, in
// message-id order. Used by the admin ledger-contents projection.
func (e *Engine) LedgerMessages(ledgerID types.LedgerID) ([]types.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.ledgerIndexByID[ledgerID]
	if !ok {
		return nil, brokererr.NotFound("ledger %d", ledgerID)
	}
	led := e.ledgers[idx]
	out := make([]types.Message, len(led.messages))
	copy(out, led.messages)
	return out, nil
}

// InFlightEntryView is the read-only projection of one in-flight lease,
// naming the ledger it belongs to for callers that only have a
// subscription id and a partition to scan.
type InFlightEntryView struct {
	Ref      types.MessageRef
	Consumer types.ConsumerID
	Deadline time.Time
	Attempt  int
}

// InFlightSnapshot returns every outstanding lease on subID across all of
// this partition's ledgers, for the admin per-subscription in-flight
// listing.
func (e *Engine) InFlightSnapshot(subID types.SubscriptionID) ([]InFlightEntryView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[subID]
	if !ok {
		return nil, brokererr.NotFound("subscription %d", subID)
	}
	var out []InFlightEntryView
	for idx, state := range sub.perLedger {
		led := e.ledgers[idx]
		for id, entry := range state.inFlight {
			out = append(out, InFlightEntryView{
				Ref:      types.MessageRef{Topic: e.topic, Partition: e.id, Ledger: led.id, Message: id},
				Consumer: entry.Consumer,
				Deadline: entry.Deadline,
				Attempt:  entry.Attempt,
			})
		}
	}
	return out, nil
}

// UndeliveredRefs returns the message refs still waiting for delivery on
// subID, across every ledger of this partition, in ascending (ledger,
// message) order. For Multicast, a message counts as undelivered as long
// as any consumer queue still holds it.
func (e *Engine) UndeliveredRefs(subID types.SubscriptionID) ([]types.MessageRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[subID]
	if !ok {
		return nil, brokererr.NotFound("subscription %d", subID)
	}
	var out []types.MessageRef
	for idx, state := range sub.perLedger {
		led := e.ledgers[idx]
		seen := make(map[types.MessageID]bool)
		addAll := func(ids []types.MessageID) {
			for _, id := range ids {
				if seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, types.MessageRef{Topic: e.topic, Partition: e.id, Ledger: led.id, Message: id})
			}
		}
		if sub.discipline == types.Multicast {
			for _, q := range state.consumerQueues {
				addAll(q)
			}
		} else {
			addAll(state.undelivered)
		}
	}
	return out, nil
}

// TxLog returns the underlying transaction log, for the admin paginated
// log-scan projection. Callers must only read from it (Stream, LastLSN);
// mutating it bypasses the Engine's single-writer discipline.
func (e *Engine) TxLog() txlog.Log { return e.log }

// Wakeups returns the registry this engine broadcasts publish/release
// signals on, so callers that need to wait across several partitions of
// the same topic can all select on the one shared registry.
func (e *Engine) Wakeups() *wakeup.Registry[types.SubscriptionID] { return e.wakeups }

// ID returns the partition id this engine owns.
func (e *Engine) ID() types.PartitionID { return e.id }

// LedgerCounts returns how many ledgers this partition holds in each
// state, for the metrics collector's LedgersTotal gauge.
func (e *Engine) LedgerCounts() []metrics.LedgerCount {
	e.mu.Lock()
	defer e.mu.Unlock()
	byState := make(map[types.LedgerState]int)
	for _, l := range e.ledgers {
		byState[l.state]++
	}
	out := make([]metrics.LedgerCount, 0, len(byState))
	for state, n := range byState {
		out = append(out, metrics.LedgerCount{State: state, Count: n})
	}
	return out
}

// SubscriptionDepths returns, for every subscription attached to this
// partition, its undelivered-queue depth (summed across ledgers, and
// across consumer queues for Multicast) and in-flight count, for the
// metrics collector's UndeliveredDepth/InFlightDepth gauges.
func (e *Engine) SubscriptionDepths() map[types.SubscriptionID]metrics.SubscriptionDepth {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[types.SubscriptionID]metrics.SubscriptionDepth, len(e.subs))
	for id, sub := range e.subs {
		var d metrics.SubscriptionDepth
		for _, state := range sub.perLedger {
			if sub.discipline == types.Multicast {
				for _, q := range state.consumerQueues {
					d.Undelivered += len(q)
				}
			} else {
				d.Undelivered += len(state.undelivered)
			}
			d.InFlight += len(state.inFlight)
		}
		out[id] = d
	}
	return out
}

package partition

import (
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// ledger is one arena entry: a bounded segment of a partition's message
// stream. Message ids within it increase strictly by insertion order.
type ledger struct {
	id            types.LedgerID
	state         types.LedgerState
	createdAt     time.Time
	messages      []types.Message
	nextMessageID types.MessageID

	// firstLSN is the LSN of this ledger's LedgerOpened event, the floor
	// below which the log must never trim while this ledger is live.
	firstLSN uint64
}

func newLedger(id types.LedgerID, now time.Time) *ledger {
	return &ledger{id: id, state: types.LedgerOpen, createdAt: now, nextMessageID: 1}
}

func (l *ledger) message(id types.MessageID) (*types.Message, bool) {
	if id < 1 || int(id) > len(l.messages) {
		return nil, false
	}
	return &l.messages[id-1], true
}

// subLedgerState is the per-(subscription, ledger) dynamic state: an
// arena entry cross-linked to its ledger by index only, never a
// back-pointer, per spec §9.
type subLedgerState struct {
	ledgerIndex int

	// Shared and KeyShared share one ordered queue. Multicast instead
	// keeps one queue per consumer in consumerQueues and leaves
	// undelivered empty.
	undelivered []types.MessageID

	consumerQueues     map[types.ConsumerID][]types.MessageID
	consumerAckCursors map[types.ConsumerID]types.MessageID

	inFlight  map[types.MessageID]*types.InFlightEntry
	ackCursor types.MessageID

	// ackedPending and consumerAckedPending hold acks that arrived out
	// of order, ahead of the cursor, until the gap closes.
	ackedPending         map[types.MessageID]bool
	consumerAckedPending map[types.ConsumerID]map[types.MessageID]bool
}

func newSubLedgerState(ledgerIndex int, discipline types.Discipline) *subLedgerState {
	s := &subLedgerState{
		ledgerIndex: ledgerIndex,
		inFlight:    make(map[types.MessageID]*types.InFlightEntry),
	}
	if discipline == types.Multicast {
		s.consumerQueues = make(map[types.ConsumerID][]types.MessageID)
		s.consumerAckCursors = make(map[types.ConsumerID]types.MessageID)
	}
	return s
}

// enqueue appends a newly published message id to every relevant queue:
// the shared queue for Shared/KeyShared, or every known consumer's own
// queue for Multicast.
func (s *subLedgerState) enqueue(id types.MessageID, discipline types.Discipline) {
	if discipline == types.Multicast {
		for c := range s.consumerQueues {
			s.consumerQueues[c] = append(s.consumerQueues[c], id)
		}
		return
	}
	s.undelivered = append(s.undelivered, id)
}

// addMulticastConsumer registers a fresh per-consumer queue, empty
// (consumers never see messages published before they joined).
func (s *subLedgerState) addMulticastConsumer(c types.ConsumerID) {
	if s.consumerQueues == nil {
		s.consumerQueues = make(map[types.ConsumerID][]types.MessageID)
		s.consumerAckCursors = make(map[types.ConsumerID]types.MessageID)
	}
	if _, ok := s.consumerQueues[c]; !ok {
		s.consumerQueues[c] = nil
		s.consumerAckCursors[c] = 0
	}
}

func (s *subLedgerState) removeMulticastConsumer(c types.ConsumerID) {
	delete(s.consumerQueues, c)
	delete(s.consumerAckCursors, c)
}

// removeUndelivered deletes id from the shared queue, preserving order
// of the remainder.
func (s *subLedgerState) removeUndelivered(id types.MessageID) bool {
	for i, m := range s.undelivered {
		if m == id {
			s.undelivered = append(s.undelivered[:i], s.undelivered[i+1:]...)
			return true
		}
	}
	return false
}

// reinsertUndelivered puts id back into the shared queue in message-id
// order, so a nacked or timed-out message never jumps ahead of earlier,
// never-delivered messages.
func (s *subLedgerState) reinsertUndelivered(id types.MessageID) {
	i := 0
	for i < len(s.undelivered) && s.undelivered[i] < id {
		i++
	}
	s.undelivered = append(s.undelivered, 0)
	copy(s.undelivered[i+1:], s.undelivered[i:])
	s.undelivered[i] = id
}

func (s *subLedgerState) reinsertConsumerQueue(consumer types.ConsumerID, id types.MessageID) {
	q := s.consumerQueues[consumer]
	i := 0
	for i < len(q) && q[i] < id {
		i++
	}
	q = append(q, 0)
	copy(q[i+1:], q[i:])
	q[i] = id
	s.consumerQueues[consumer] = q
}

// minMulticastAckCursor returns the lowest per-consumer ack cursor,
// which spec §4.4 defines as the subscription's effective ack cursor
// for trim purposes under Multicast.
func (s *subLedgerState) minMulticastAckCursor() types.MessageID {
	if len(s.consumerAckCursors) == 0 {
		return s.ackCursor
	}
	var min types.MessageID = ^types.MessageID(0)
	for _, c := range s.consumerAckCursors {
		if c < min {
			min = c
		}
	}
	return min
}

package partition

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// replayLocked rebuilds ledger and subscription state from every event
// already durable in e.log, without appending anything new. Callers must
// hold e.mu. It is the counterpart to the log-then-apply order every
// mutator uses live: replay applies the same state transitions the
// original Append+apply pair produced, in the same order, so a restarted
// partition reaches byte-identical state to the one that crashed.
//
// Consumer registration is not itself logged (spec §9b treats it as
// ephemeral connection state, not topology), so an in-flight lease that
// survives replay is attributed to whatever consumer id last held it
// even though that consumer is not actually connected; scan_timeouts
// naturally reclaims it once its deadline (already in the past, in the
// common case) is checked.
func (e *Engine) replayLocked(ctx context.Context) error {
	return e.log.Stream(ctx, 0, func(ev txlog.Event) error {
		switch ev.Kind {
		case txlog.EventLedgerOpened:
			return e.replayLedgerOpened(ev)
		case txlog.EventLedgerClosed:
			return e.replayLedgerState(ev, types.LedgerClosed, true)
		case txlog.EventLedgerDrained:
			return e.replayLedgerState(ev, types.LedgerDrained, false)
		case txlog.EventMessagePublished:
			return e.replayMessagePublished(ev)
		case txlog.EventMessageDelivered:
			return e.replayMessageDelivered(ev)
		case txlog.EventMessageAcked:
			return e.replayRelease(ev, true)
		case txlog.EventMessageNacked, txlog.EventMessageTimedOut:
			return e.replayRelease(ev, false)
		default:
			return nil
		}
	})
}

func (e *Engine) replayLedgerOpened(ev txlog.Event) error {
	var p txlog.LedgerPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return brokererr.StorageFailure(err, "decode LedgerOpened at lsn %d", ev.LSN)
	}
	led := newLedger(p.Ledger, time.UnixMilli(ev.TimestampMs))
	led.firstLSN = ev.LSN
	idx := len(e.ledgers)
	e.ledgers = append(e.ledgers, led)
	e.ledgerIndexByID[p.Ledger] = idx
	for _, s := range e.subs {
		s.perLedger = append(s.perLedger, newSubLedgerState(idx, s.discipline))
	}
	e.activeLedgerIdx = idx
	e.migratingTo = nil
	return nil
}

// replayLedgerState applies LedgerClosed/LedgerDrained. clearsActive
// drops activeLedgerIdx when the closed ledger was the active one
// (LedgerClosed only — a drained ledger is never the active one).
func (e *Engine) replayLedgerState(ev txlog.Event, state types.LedgerState, clearsActive bool) error {
	var p txlog.LedgerPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return brokererr.StorageFailure(err, "decode %s at lsn %d", ev.Kind, ev.LSN)
	}
	idx, ok := e.ledgerIndexByID[p.Ledger]
	if !ok {
		return brokererr.StorageFailure(nil, "%s references unknown ledger %d", ev.Kind, p.Ledger)
	}
	e.ledgers[idx].state = state
	if clearsActive && e.activeLedgerIdx == idx {
		e.activeLedgerIdx = -1
	}
	return nil
}

func (e *Engine) replayMessagePublished(ev txlog.Event) error {
	var p txlog.MessagePublishedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return brokererr.StorageFailure(err, "decode MessagePublished at lsn %d", ev.LSN)
	}
	idx, ok := e.ledgerIndexByID[p.Ref.Ledger]
	if !ok {
		return brokererr.StorageFailure(nil, "MessagePublished references unknown ledger %d", p.Ref.Ledger)
	}
	led := e.ledgers[idx]
	led.messages = append(led.messages, types.Message{
		ID: p.Ref.Message, Key: p.Key, PublishTimeMs: p.TimestampMs, Attributes: p.Attributes,
	})
	if p.Ref.Message >= led.nextMessageID {
		led.nextMessageID = p.Ref.Message + 1
	}
	for _, s := range e.subs {
		s.perLedger[idx].enqueue(p.Ref.Message, s.discipline)
	}
	return nil
}

func (e *Engine) replayMessageDelivered(ev txlog.Event) error {
	var p txlog.MessageDeliveredPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return brokererr.StorageFailure(err, "decode MessageDelivered at lsn %d", ev.LSN)
	}
	idx, ok := e.ledgerIndexByID[p.Ref.Ledger]
	if !ok {
		return brokererr.StorageFailure(nil, "MessageDelivered references unknown ledger %d", p.Ref.Ledger)
	}
	sub, ok := e.subs[p.Subscription]
	if !ok {
		return nil // subscription has since been removed from the catalog; nothing to replay onto
	}
	state := sub.perLedger[idx]
	if sub.discipline == types.Multicast {
		q := state.consumerQueues[p.Consumer]
		state.consumerQueues[p.Consumer] = removeMessageID(q, p.Ref.Message)
	} else {
		state.removeUndelivered(p.Ref.Message)
	}
	if msg, ok := e.ledgers[idx].message(p.Ref.Message); ok {
		msg.DeliveryCount = p.Attempt
	}
	state.inFlight[p.Ref.Message] = &types.InFlightEntry{
		Message: p.Ref.Message, Consumer: p.Consumer, Deadline: time.UnixMilli(p.DeadlineMs), Attempt: p.Attempt,
	}
	return nil
}

// replayRelease applies MessageAcked (acked=true) or MessageNacked/
// MessageTimedOut (acked=false). The consumer that held the lease is
// recovered from the in-flight entry itself, since none of these events
// carry a consumer id.
func (e *Engine) replayRelease(ev txlog.Event, acked bool) error {
	var p txlog.MessageAckPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return brokererr.StorageFailure(err, "decode %s at lsn %d", ev.Kind, ev.LSN)
	}
	idx, ok := e.ledgerIndexByID[p.Ref.Ledger]
	if !ok {
		return brokererr.StorageFailure(nil, "%s references unknown ledger %d", ev.Kind, p.Ref.Ledger)
	}
	sub, ok := e.subs[p.Subscription]
	if !ok {
		return nil
	}
	state := sub.perLedger[idx]
	entry, ok := state.inFlight[p.Ref.Message]
	if !ok {
		return nil // already folded in by a later compacted replay path
	}
	delete(state.inFlight, p.Ref.Message)

	if acked {
		if sub.discipline == types.Multicast {
			ackMulticast(state, entry.Consumer, p.Ref.Message)
		} else {
			ackShared(state, p.Ref.Message)
		}
		return nil
	}
	if sub.discipline == types.Multicast {
		state.reinsertConsumerQueue(entry.Consumer, p.Ref.Message)
	} else {
		state.reinsertUndelivered(p.Ref.Message)
	}
	return nil
}

func removeMessageID(ids []types.MessageID, target types.MessageID) []types.MessageID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

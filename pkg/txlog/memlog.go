package txlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
)

// InMemoryLog is a Log backend with no persistence, used by tests that
// exercise the partition engine and dispatch logic without touching disk.
// Append durability is immediate: there is nothing to fsync.
type InMemoryLog struct {
	mu        sync.Mutex
	events    []Event
	lastLSN   uint64
	trimFloor uint64
}

// NewInMemoryLog creates an empty in-memory log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{}
}

func (l *InMemoryLog) Append(_ context.Context, kind EventKind, payload []byte) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastLSN++
	ev := Event{
		LSN:         l.lastLSN,
		TimestampMs: time.Now().UnixMilli(),
		Kind:        kind,
		Payload:     payload,
	}
	l.events = append(l.events, ev)
	return ev, nil
}

func (l *InMemoryLog) Stream(_ context.Context, fromLSN uint64, fn func(Event) error) error {
	l.mu.Lock()
	snapshot := make([]Event, len(l.events))
	copy(snapshot, l.events)
	l.mu.Unlock()

	for _, ev := range snapshot {
		if ev.LSN < fromLSN {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func (l *InMemoryLog) LastLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLSN
}

func (l *InMemoryLog) TrimBefore(ctx context.Context, floor uint64) error {
	l.mu.Lock()
	if floor < l.trimFloor {
		l.mu.Unlock()
		return brokererr.InvalidRequest("trim floor %d is behind current floor %d", floor, l.trimFloor)
	}
	kept := l.events[:0:0]
	for _, ev := range l.events {
		if ev.LSN >= floor {
			kept = append(kept, ev)
		}
	}
	l.events = kept
	l.trimFloor = floor
	l.mu.Unlock()

	payload, _ := json.Marshal(TrimmedPayload{UpToLSN: floor})
	_, err := l.Append(ctx, EventTrimmed, payload)
	return err
}

func (l *InMemoryLog) TrimFloor() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trimFloor
}

func (l *InMemoryLog) Close() error { return nil }

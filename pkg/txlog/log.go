package txlog

import "context"

// Log is the durability contract every backend satisfies: FileLog
// (segmented files + fsync), InMemoryLog (tests), and a future
// ExternalTable. The contract in spec §4.2 does not vary across backends.
type Log interface {
	// Append durably records kind/payload and returns the assigned event,
	// including its LSN and wall-clock timestamp. It returns only after
	// the event is durable.
	Append(ctx context.Context, kind EventKind, payload []byte) (Event, error)

	// Stream reads events from fromLSN (inclusive) forward, calling fn
	// for each. It stops and returns fn's error if fn returns non-nil.
	Stream(ctx context.Context, fromLSN uint64, fn func(Event) error) error

	// LastLSN returns the LSN of the most recently appended event, or 0
	// if the log is empty.
	LastLSN() uint64

	// TrimBefore requests that events with LSN < floor become eligible
	// for removal and appends a Trimmed event recording the new floor.
	// Callers must never pass a floor past any live ack cursor or open
	// ledger's earliest-unacked pointer.
	TrimBefore(ctx context.Context, floor uint64) error

	// TrimFloor returns the lowest LSN still guaranteed retained.
	TrimFloor() uint64

	Close() error
}

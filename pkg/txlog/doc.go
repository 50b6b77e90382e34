/*
Package txlog implements the broker's durable, append-only transaction
log: the single source of truth the partition engine and catalog replay
to reconstruct state after a crash.

Every state mutation visible to a client — a publish ack, a delivery
handshake, an ack response — must have its corresponding Event durable in
the log before the client sees a reply. Log appends return only after the
chosen backend has made the write durable (fsync for FileLog, nothing
further needed for InMemoryLog).

Events carry a monotonically increasing LSN assigned at append time.
Readers stream forward from any LSN; trim_before(lsn) advances the log's
floor but never past any live subscription's ack cursor or any open
ledger's earliest-unacked pointer — callers are responsible for computing
a safe floor before calling it.
*/
package txlog

/*
Package partition is the partition engine: per-partition authoritative
state (ledger arena, per-subscription undelivered/in-flight/ack-cursor
state, consumer leases) plus the Topic and Core umbrellas that route
publish/ack/nack/dispatch calls to the right partition.

Grounded on the teacher's pkg/manager/fsm.go (a single-writer Apply
serialized by mutex, switching on command kind) and pkg/manager/manager.go
(the higher-level operations layer, each operation logging then applying).
Ledgers and per-subscription state are held in arenas (parallel slices)
and cross-referenced by integer index per spec §9, rather than by
back-pointer, so a ledger never needs to know its subscriptions and a
subscription's per-ledger state never needs to know its ledger beyond an
index.

Every mutation goes: validate against current state -> append to the
transaction log -> apply to in-memory state only after the append
returns durable. A log-append failure leaves state untouched.
*/
package partition

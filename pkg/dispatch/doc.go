/*
Package dispatch implements the three subscription delivery disciplines
as a tagged variant (spec §9's "avoid a class hierarchy" note): Shared,
Multicast, and KeyShared each satisfy Picker with a single Pick method
rather than existing as a type hierarchy. The partition engine builds
the candidate list (oldest ledger first, oldest message id first) and
calls Pick; dispatch never touches the transaction log or catalog
directly.

KeyShared additionally owns a consistent-hash ring over registered
consumer ids (github.com/cespare/xxhash/v2) so that key ownership
survives consumer churn with minimal reshuffling.
*/
package dispatch

/*
Package admin implements the read-only projections spec §4.5 names:
catalog dumps, ledger contents, per-subscription in-flight listings, and
paginated transaction-log scans filtered by topic/partition/ledger/
message with a detailed/compact attribute-rendering switch. Every
projection reads a consistent snapshot as of a single LSN — Engine's
per-partition mutex already guarantees no half-applied event is ever
visible, so a projection need only read under that same mutex once.

Grounded on the teacher's pkg/api/health.go JSON-projection pattern
(HealthResponse/ReadyResponse as plain structs marshaled directly) and
metrics_collector.go's periodic read-only aggregation over manager state
without holding its write lock for longer than one snapshot read.
*/
package admin

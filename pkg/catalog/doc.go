/*
Package catalog holds the broker's static topology: nodes, topics,
partitions, and subscriptions. It is read-mostly and copy-on-write —
every administrative mutation (create topic, create partition, create
subscription, reassign a partition's owner) replaces the relevant map
wholesale under a single mutex rather than mutating entries in place, so
concurrent readers never observe a half-applied update.

Catalog is loaded once at startup from a persisted snapshot (a
go.etcd.io/bbolt file, one bucket per entity kind) and thereafter only
changes in response to administrative log events applied by the caller —
it never synthesizes entries on its own. Unknown ids are always reported
as brokererr.NotFound; downstream packages must not treat a missing
lookup as anything else.
*/
package catalog

/*
Package metrics exposes the broker's Prometheus counters, gauges, and
histograms, plus a small generic component-health tracker with
HealthHandler and ReadyHandler HTTP handlers (not mounted by the broker's
HTTP server).

Metric names follow spec §6: per-partition publishes/deliveries/acks/
nacks/timeouts/in-flight-depth counters and gauges, plus transaction-log
append-latency and dispatch-latency histograms. Handler() returns a
Prometheus HTTP handler for them; the broker's HTTP server does not mount
it (its unversioned GET /stats routes, in pkg/httpapi, serve a JSON
aggregate). StatsD emission itself is out of the core's scope.
*/
package metrics

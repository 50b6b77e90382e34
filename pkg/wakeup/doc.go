// Package wakeup provides broadcast-style condition signals used to wake
// blocked dispatch pollers. It replaces the teacher's pkg/events Broker
// (a channel-fan-out pub/sub for cluster events) with a narrower
// primitive: one signal per subscription, broadcast whenever a message
// becomes available or a lease is released, with no event payload or
// history — callers re-check their own state after waking.
package wakeup

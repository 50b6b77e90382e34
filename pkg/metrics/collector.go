package metrics

import (
	"strconv"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// SubscriptionDepth is a point-in-time undelivered/in-flight count for one
// subscription on one partition.
type SubscriptionDepth struct {
	Undelivered int
	InFlight    int
}

// LedgerCount is the number of ledgers a partition holds in a given state.
type LedgerCount struct {
	State types.LedgerState
	Count int
}

// Source is the read-only view Collector needs of the running broker.
// *partition.Core satisfies it. The interface lives here, not in
// pkg/partition, because pkg/partition already imports pkg/metrics to
// instrument its own counters; defining it the other way round would be
// an import cycle.
type Source interface {
	Topics() []types.TopicID
	TopicPartitions(topic types.TopicID) []types.PartitionID
	PartitionLedgerCounts(topic types.TopicID, partition types.PartitionID) []LedgerCount
	PartitionSubscriptionDepths(topic types.TopicID, partition types.PartitionID) map[types.SubscriptionID]SubscriptionDepth
}

// Collector periodically reads a Source and refreshes the gauges that
// can't be updated inline from a single mutation: InFlightDepth,
// UndeliveredDepth, and LedgersTotal all describe the current size of a
// queue, not a count of events, so they're collected rather than
// incremented at the call site.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector returns a collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins collecting on interval, running one collection
// immediately before the first tick.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, topicID := range c.source.Topics() {
		topicLabel := strconv.FormatUint(uint64(topicID), 10)
		for _, pid := range c.source.TopicPartitions(topicID) {
			partitionLabel := strconv.FormatUint(uint64(pid), 10)
			c.collectLedgerCounts(partitionLabel, c.source.PartitionLedgerCounts(topicID, pid))
			c.collectDepths(topicLabel, partitionLabel, c.source.PartitionSubscriptionDepths(topicID, pid))
		}
	}
}

func (c *Collector) collectLedgerCounts(partitionLabel string, counts []LedgerCount) {
	byState := make(map[types.LedgerState]int, len(counts))
	for _, lc := range counts {
		byState[lc.State] += lc.Count
	}
	for _, state := range []types.LedgerState{types.LedgerOpen, types.LedgerClosed, types.LedgerDrained} {
		LedgersTotal.WithLabelValues(partitionLabel, state.String()).Set(float64(byState[state]))
	}
}

func (c *Collector) collectDepths(topicLabel, partitionLabel string, depths map[types.SubscriptionID]SubscriptionDepth) {
	for subID, d := range depths {
		subLabel := strconv.FormatUint(uint64(subID), 10)
		UndeliveredDepth.WithLabelValues(topicLabel, partitionLabel, subLabel).Set(float64(d.Undelivered))
		InFlightDepth.WithLabelValues(topicLabel, partitionLabel, subLabel).Set(float64(d.InFlight))
	}
}

package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/partition"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_CollectsDepthsFromCore(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	cat, err := catalog.Load(store)
	require.NoError(t, err)
	require.NoError(t, cat.CreateTopic(&types.Topic{ID: 1, Name: "orders", PartitionCount: 1}))
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "s", Discipline: types.Shared, AckTimeout: time.Minute}
	require.NoError(t, cat.CreateSubscription(sub))
	require.NoError(t, cat.CreatePartition(&types.Partition{ID: 1, Topic: 1, OwnerNode: 1}))

	core := partition.NewCore(1, cat)
	e := partition.NewEngine(1, 1, 1, []*types.Subscription{sub}, txlog.NewInMemoryLog(), wakeup.NewRegistry[types.SubscriptionID]())
	require.NoError(t, e.Bootstrap(ctx))
	require.NoError(t, core.AddEngine(1, 1, e))

	_, _, err = core.Publish(ctx, 1, 1, "", []byte("k"), 0, nil)
	require.NoError(t, err)

	// *partition.Core satisfies metrics.Source structurally; this is the
	// compile-time check that the wiring cmd/broker relies on still holds.
	var source metrics.Source = core

	depths := source.PartitionSubscriptionDepths(1, 1)
	require.Equal(t, 1, depths[1].Undelivered)
	require.Equal(t, 0, depths[1].InFlight)

	counts := source.PartitionLedgerCounts(1, 1)
	require.Len(t, counts, 1)
	require.Equal(t, types.LedgerOpen, counts[0].State)
	require.Equal(t, 1, counts[0].Count)

	collector := metrics.NewCollector(source)
	collector.Start(10 * time.Millisecond)
	defer collector.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.UndeliveredDepth.WithLabelValues("1", "1", "1")) == 1
	}, time.Second, 5*time.Millisecond)
}

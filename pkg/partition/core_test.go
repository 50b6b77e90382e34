package partition

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T, discipline types.Discipline, partitions int) (*Core, types.SubscriptionID) {
	t.Helper()
	store := catalog.NewMemStore()
	cat, err := catalog.Load(store)
	require.NoError(t, err)

	require.NoError(t, cat.CreateTopic(&types.Topic{ID: 1, Name: "orders", PartitionCount: partitions}))
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "s", Discipline: discipline, AckTimeout: time.Minute}
	require.NoError(t, cat.CreateSubscription(sub))

	core := NewCore(1, cat)
	wakeups := wakeup.NewRegistry[types.SubscriptionID]()

	for i := 1; i <= partitions; i++ {
		pid := types.PartitionID(i)
		require.NoError(t, cat.CreatePartition(&types.Partition{ID: pid, Topic: 1, OwnerNode: 1}))
		subObj, err := cat.Subscription(1)
		require.NoError(t, err)
		e := NewEngine(pid, 1, 1, []*types.Subscription{subObj}, txlog.NewInMemoryLog(), wakeups)
		require.NoError(t, e.Bootstrap(context.Background()))
		require.NoError(t, core.AddEngine(1, pid, e))
	}
	return core, 1
}

func TestCore_PublishAndConsumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	core, subID := newTestCore(t, types.Shared, 1)

	ref, _, err := core.Publish(ctx, 1, 1, "", []byte("k"), 0, map[string]string{"a": "1"})
	require.NoError(t, err)

	consumerID, err := core.RegisterConsumer(1, subID, 5)
	require.NoError(t, err)

	lease, ok, err := core.NextForConsumer(ctx, 1, subID, consumerID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease.Ref)

	require.NoError(t, core.Ack(ctx, 1, subID, consumerID, []types.MessageRef{ref}))

	_, ok, err = core.NextForConsumer(ctx, 1, subID, consumerID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCore_RoundRobinsAcrossPartitions(t *testing.T) {
	ctx := context.Background()
	core, subID := newTestCore(t, types.Shared, 2)

	ref1, _, err := core.Publish(ctx, 1, 1, "", []byte("k1"), 0, nil)
	require.NoError(t, err)
	ref2, _, err := core.Publish(ctx, 1, 2, "", []byte("k2"), 0, nil)
	require.NoError(t, err)

	consumerID, err := core.RegisterConsumer(1, subID, 5)
	require.NoError(t, err)

	seen := map[types.MessageRef]bool{}
	for i := 0; i < 2; i++ {
		lease, ok, err := core.NextForConsumer(ctx, 1, subID, consumerID)
		require.NoError(t, err)
		require.True(t, ok)
		seen[lease.Ref] = true
	}
	require.True(t, seen[ref1])
	require.True(t, seen[ref2])
}

func TestCore_UnregisterConsumerReleasesLeases(t *testing.T) {
	ctx := context.Background()
	core, subID := newTestCore(t, types.Shared, 1)

	ref, _, err := core.Publish(ctx, 1, 1, "", []byte("k"), 0, nil)
	require.NoError(t, err)

	consumerID, err := core.RegisterConsumer(1, subID, 5)
	require.NoError(t, err)

	lease, ok, err := core.NextForConsumer(ctx, 1, subID, consumerID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease.Ref)

	require.NoError(t, core.UnregisterConsumer(ctx, 1, subID, consumerID))

	consumer2, err := core.RegisterConsumer(1, subID, 5)
	require.NoError(t, err)
	lease2, ok, err := core.NextForConsumer(ctx, 1, subID, consumer2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease2.Ref)
}

func TestCore_RunMaintenanceRedeliversTimedOutLease(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	cat, err := catalog.Load(store)
	require.NoError(t, err)
	require.NoError(t, cat.CreateTopic(&types.Topic{ID: 1, Name: "orders", PartitionCount: 1}))
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "s", Discipline: types.Shared, AckTimeout: time.Millisecond}
	require.NoError(t, cat.CreateSubscription(sub))
	require.NoError(t, cat.CreatePartition(&types.Partition{ID: 1, Topic: 1, OwnerNode: 1}))

	core := NewCore(1, cat)
	wakeups := wakeup.NewRegistry[types.SubscriptionID]()
	e := NewEngine(1, 1, 1, []*types.Subscription{sub}, txlog.NewInMemoryLog(), wakeups)
	require.NoError(t, e.Bootstrap(ctx))
	require.NoError(t, core.AddEngine(1, 1, e))

	ref, _, err := core.Publish(ctx, 1, 1, "", []byte("k"), 0, nil)
	require.NoError(t, err)

	consumerID, err := core.RegisterConsumer(1, 1, 5)
	require.NoError(t, err)
	_, ok, err := core.NextForConsumer(ctx, 1, 1, consumerID)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, core.RunMaintenance(ctx, time.Now()))

	lease, ok, err := core.NextForConsumer(ctx, 1, 1, consumerID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease.Ref)
}

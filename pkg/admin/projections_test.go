package admin

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/partition"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/stretchr/testify/require"
)

func newAdminTestCore(t *testing.T) (*partition.Core, types.SubscriptionID) {
	t.Helper()
	store := catalog.NewMemStore()
	cat, err := catalog.Load(store)
	require.NoError(t, err)

	require.NoError(t, cat.CreateTopic(&types.Topic{ID: 1, Name: "orders", PartitionCount: 1}))
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "s", Discipline: types.Shared, AckTimeout: time.Minute}
	require.NoError(t, cat.CreateSubscription(sub))
	require.NoError(t, cat.CreatePartition(&types.Partition{ID: 1, Topic: 1, OwnerNode: 1}))

	core := partition.NewCore(1, cat)
	wakeups := wakeup.NewRegistry[types.SubscriptionID]()
	e := partition.NewEngine(1, 1, 1, []*types.Subscription{sub}, txlog.NewInMemoryLog(), wakeups)
	require.NoError(t, e.Bootstrap(context.Background()))
	require.NoError(t, core.AddEngine(1, 1, e))
	return core, sub.ID
}

func TestDumpCatalog_ListsTopicAndSubscription(t *testing.T) {
	core, subID := newAdminTestCore(t)
	snap := DumpCatalog(core)
	require.Len(t, snap.Topics, 1)
	require.Equal(t, "orders", snap.Topics[0].Name)
	require.Len(t, snap.Partitions, 1)
	require.Len(t, snap.Subscriptions, 1)
	require.Equal(t, subID, snap.Subscriptions[0].ID)
}

func TestLedgersForPartition_CompactAndDetailed(t *testing.T) {
	ctx := context.Background()
	core, _ := newAdminTestCore(t)

	_, _, err := core.Publish(ctx, 1, 1, "", []byte("k"), 0, nil)
	require.NoError(t, err)

	compact, err := LedgersForPartition(core, 1, 1, false)
	require.NoError(t, err)
	require.Len(t, compact, 1)
	require.Equal(t, 1, compact[0].MessageCount)
	require.Nil(t, compact[0].Messages)

	detailed, err := LedgersForPartition(core, 1, 1, true)
	require.NoError(t, err)
	require.Len(t, detailed[0].Messages, 1)
	require.Equal(t, []byte("k"), detailed[0].Messages[0].Key)
}

func TestLedgersForPartition_UnknownPartitionIsNotFound(t *testing.T) {
	core, _ := newAdminTestCore(t)
	_, err := LedgersForPartition(core, 1, 99, false)
	require.Error(t, err)
}

func TestInFlightForSubscription_ListsOutstandingLease(t *testing.T) {
	ctx := context.Background()
	core, subID := newAdminTestCore(t)

	ref, _, err := core.Publish(ctx, 1, 1, "", []byte("k"), 0, nil)
	require.NoError(t, err)

	consumerID, err := core.RegisterConsumer(1, subID, 5)
	require.NoError(t, err)
	_, ok, err := core.NextForConsumer(ctx, 1, subID, consumerID)
	require.NoError(t, err)
	require.True(t, ok)

	listing, err := InFlightForSubscription(core, 1, subID)
	require.NoError(t, err)
	require.Len(t, listing.Entries, 1)
	require.Equal(t, ref, listing.Entries[0].Ref)
	require.Equal(t, consumerID, listing.Entries[0].Consumer)
}

func TestScanLog_FiltersByMessageAndPaginates(t *testing.T) {
	ctx := context.Background()
	core, _ := newAdminTestCore(t)

	_, _, err := core.Publish(ctx, 1, 1, "", []byte("k1"), 0, nil)
	require.NoError(t, err)
	_, _, err = core.Publish(ctx, 1, 1, "", []byte("k2"), 0, nil)
	require.NoError(t, err)

	full, err := ScanLog(ctx, core, 1, 1, 0, 100, LogFilter{}, false)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(full.Entries), 3) // LedgerOpened + 2x MessagePublished
	require.Equal(t, uint64(0), full.NextLSN, "exhausted scan reports no further page")

	filtered, err := ScanLog(ctx, core, 1, 1, 0, 100, LogFilter{Ledger: 1, Message: 2}, false)
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 1)
	require.Equal(t, "MessagePublished", filtered.Entries[0].Kind)
	require.Equal(t, types.MessageID(2), filtered.Entries[0].Ref.Message)

	page1, err := ScanLog(ctx, core, 1, 1, 0, 1, LogFilter{}, false)
	require.NoError(t, err)
	require.Len(t, page1.Entries, 1)
	require.NotEqual(t, uint64(0), page1.NextLSN)

	detailed, err := ScanLog(ctx, core, 1, 1, 0, 1, LogFilter{}, true)
	require.NoError(t, err)
	require.Len(t, detailed.Entries, 1)
	require.NotEmpty(t, detailed.Entries[0].Detail)
}

func TestScanLog_UnknownPartitionIsNotFound(t *testing.T) {
	core, _ := newAdminTestCore(t)
	_, err := ScanLog(context.Background(), core, 1, 99, 0, 10, LogFilter{}, false)
	require.Error(t, err)
}

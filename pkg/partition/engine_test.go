package partition

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/dispatch"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, subs []*types.Subscription) *Engine {
	t.Helper()
	e := NewEngine(1, 1, 1, subs, txlog.NewInMemoryLog(), wakeup.NewRegistry[types.SubscriptionID]())
	require.NoError(t, e.Bootstrap(context.Background()))
	return e
}

func sharedSub(id types.SubscriptionID) *types.Subscription {
	return &types.Subscription{ID: id, Topic: 1, Name: "s", Discipline: types.Shared, AckTimeout: time.Minute}
}

func TestEngine_PublishAndDeliverAndAck_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, []*types.Subscription{sharedSub(1)})

	ref, lsn, err := e.Publish(ctx, "", []byte("k"), 0, map[string]string{"a": "1"})
	require.NoError(t, err)
	require.Greater(t, lsn, uint64(0))
	require.Equal(t, types.MessageID(1), ref.Message)

	lease, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease.Ref)
	require.Equal(t, 1, lease.DeliveryCount)

	require.NoError(t, e.Ack(ctx, 1, 1, []types.MessageRef{ref}))

	_, ok, err = e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_PublishDedupesRetriedRequestID(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, []*types.Subscription{sharedSub(1)})

	ref1, lsn1, err := e.Publish(ctx, "req-1", []byte("k"), 0, nil)
	require.NoError(t, err)

	ref2, lsn2, err := e.Publish(ctx, "req-1", []byte("k"), 0, nil)
	require.NoError(t, err)
	require.Equal(t, ref1, ref2)
	require.Equal(t, lsn1, lsn2)

	snap := e.Snapshot()
	require.Equal(t, 1, snap[0].MessageCount, "retried request id must not append a second message")

	ref3, _, err := e.Publish(ctx, "req-2", []byte("k"), 0, nil)
	require.NoError(t, err)
	require.NotEqual(t, ref1, ref3)
}

func TestEngine_NackReturnsToUndeliveredInOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, []*types.Subscription{sharedSub(1)})

	ref1, _, _ := e.Publish(ctx, "", []byte("k1"), 0, nil)
	_, _, _ = e.Publish(ctx, "", []byte("k2"), 0, nil)

	lease, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref1, lease.Ref)

	require.NoError(t, e.Nack(ctx, 1, 1, []types.MessageRef{ref1}))

	lease2, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref1, lease2.Ref, "nacked message should be redelivered before the newer one")
	require.Equal(t, 2, lease2.DeliveryCount)
}

func TestEngine_ScanTimeoutsRedeliversExpiredLeases(t *testing.T) {
	ctx := context.Background()
	sub := sharedSub(1)
	sub.AckTimeout = time.Millisecond
	e := newTestEngine(t, []*types.Subscription{sub})

	ref, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)
	_, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.ScanTimeouts(ctx, time.Now()))

	lease, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 2, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease.Ref)
	require.Equal(t, 2, lease.DeliveryCount)
}

func TestEngine_PublishFailsWhenNoActiveLedger(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	require.NoError(t, e.CloseActiveLedger(ctx, 2))

	_, _, err := e.Publish(ctx, "", nil, 0, nil)
	require.Error(t, err)
	bErr, ok := brokererr.As(err)
	require.True(t, ok)
	require.Equal(t, uint64(2), bErr.OwnerNode)

	require.NoError(t, e.OpenNewLedger(ctx))
	_, _, err = e.Publish(ctx, "", nil, 0, nil)
	require.NoError(t, err)
}

func TestEngine_AckWrongConsumerIsConflict(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, []*types.Subscription{sharedSub(1)})

	ref, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)
	_, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	err = e.Ack(ctx, 1, 2, []types.MessageRef{ref})
	require.Error(t, err)
}

func TestEngine_MulticastFanOutBothConsumersSeeMessage(t *testing.T) {
	ctx := context.Background()
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "m", Discipline: types.Multicast, AckTimeout: time.Minute}
	e := newTestEngine(t, []*types.Subscription{sub})

	require.NoError(t, e.AttachConsumer(1, 1))
	require.NoError(t, e.AttachConsumer(1, 2))

	ref, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)

	l1, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, l1.Ref)

	l2, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 2, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, l2.Ref)

	require.NoError(t, e.Ack(ctx, 1, 1, []types.MessageRef{ref}))
	require.NoError(t, e.Ack(ctx, 1, 2, []types.MessageRef{ref}))
}

func TestEngine_KeySharedOrdersPerKey(t *testing.T) {
	ctx := context.Background()
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "ks", Discipline: types.KeyShared, AckTimeout: time.Minute}
	e := newTestEngine(t, []*types.Subscription{sub})

	ring := dispatch.NewKeyRing()
	ring.Add(1)
	ring.Add(2)

	refA, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)
	refB, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)

	owner, ok := ring.Owner([]byte("k"))
	require.True(t, ok)

	lease, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: owner, MaxInFlight: 5}, ring)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, refA, lease.Ref)

	_, ok, err = e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: owner, MaxInFlight: 5}, ring)
	require.NoError(t, err)
	require.False(t, ok, "second message for the same key must wait for the first to ack")

	require.NoError(t, e.Ack(ctx, 1, owner, []types.MessageRef{refA}))

	lease2, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: owner, MaxInFlight: 5}, ring)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, refB, lease2.Ref)
}

func TestEngine_LedgerDrainsAfterCloseAndFullAck(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, []*types.Subscription{sharedSub(1)})

	ref, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)
	_, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, e.CloseActiveLedger(ctx, 9))
	require.NoError(t, e.Ack(ctx, 1, 1, []types.MessageRef{ref}))

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, types.LedgerDrained, snap[0].State)
}

func TestEngine_DetachConsumerReleasesLeases(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, []*types.Subscription{sharedSub(1)})

	ref, _, _ := e.Publish(ctx, "", []byte("k"), 0, nil)
	_, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 1, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, e.DetachConsumer(ctx, 1, 1))

	lease, ok, err := e.NextForSubscription(ctx, 1, dispatch.ConsumerInfo{ID: 2, MaxInFlight: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ref, lease.Ref)
}

package txlog_test

import (
	"context"
	"testing"

	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLog_AppendAssignsMonotonicLSNs(t *testing.T) {
	l := txlog.NewInMemoryLog()
	ctx := context.Background()

	ev1, err := l.Append(ctx, txlog.EventMessagePublished, []byte("a"))
	require.NoError(t, err)
	ev2, err := l.Append(ctx, txlog.EventMessagePublished, []byte("b"))
	require.NoError(t, err)

	require.Equal(t, uint64(1), ev1.LSN)
	require.Equal(t, uint64(2), ev2.LSN)
	require.Equal(t, uint64(2), l.LastLSN())
}

func TestInMemoryLog_StreamFromLSN(t *testing.T) {
	l := txlog.NewInMemoryLog()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, txlog.EventMessagePublished, nil)
		require.NoError(t, err)
	}

	var seen []uint64
	err := l.Stream(ctx, 3, func(ev txlog.Event) error {
		seen = append(seen, ev.LSN)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4, 5}, seen)
}

func TestInMemoryLog_TrimBeforeRejectsRegression(t *testing.T) {
	l := txlog.NewInMemoryLog()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, txlog.EventMessagePublished, nil)
		require.NoError(t, err)
	}

	require.NoError(t, l.TrimBefore(ctx, 2))
	require.Equal(t, uint64(2), l.TrimFloor())
	require.Error(t, l.TrimBefore(ctx, 1))
}

func TestFileLog_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := txlog.Open(dir, 0)
	require.NoError(t, err)

	var appended []txlog.Event
	for i := 0; i < 10; i++ {
		ev, err := l.Append(ctx, txlog.EventMessagePublished, []byte{byte(i)})
		require.NoError(t, err)
		appended = append(appended, ev)
	}
	require.NoError(t, l.Close())

	reopened, err := txlog.Open(dir, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), reopened.LastLSN())

	var replayed []txlog.Event
	err = reopened.Stream(ctx, 1, func(ev txlog.Event) error {
		replayed = append(replayed, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 10)
	for i, ev := range replayed {
		require.Equal(t, appended[i].LSN, ev.LSN)
		require.Equal(t, appended[i].Payload, ev.Payload)
	}
}

func TestFileLog_SegmentRotation(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Tiny segment size forces rotation after a handful of records.
	l, err := txlog.Open(dir, 128)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := l.Append(ctx, txlog.EventMessagePublished, []byte("payload-data"))
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	reopened, err := txlog.Open(dir, 128)
	require.NoError(t, err)
	require.Equal(t, uint64(20), reopened.LastLSN())

	count := 0
	err = reopened.Stream(ctx, 1, func(ev txlog.Event) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 20, count)
}

func TestFileLog_TrimRemovesFullyConsumedSegments(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := txlog.Open(dir, 96)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		_, err := l.Append(ctx, txlog.EventMessagePublished, []byte("xxxxxxxx"))
		require.NoError(t, err)
	}

	last := l.LastLSN()
	require.NoError(t, l.TrimBefore(ctx, last-1))
	require.Equal(t, last-1, l.TrimFloor())

	var seen []uint64
	err = l.Stream(ctx, 0, func(ev txlog.Event) error {
		seen = append(seen, ev.LSN)
		return nil
	})
	require.NoError(t, err)
	for _, lsn := range seen {
		require.GreaterOrEqual(t, lsn, last-1)
	}
}

package wakeup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignal_BroadcastWakesWaiter(t *testing.T) {
	s := NewSignal()
	waitCh := s.Wait()

	done := make(chan struct{})
	go func() {
		<-waitCh
		close(done)
	}()

	s.Broadcast()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestSignal_WaitAfterBroadcastGetsFreshChannel(t *testing.T) {
	s := NewSignal()
	first := s.Wait()
	s.Broadcast()

	select {
	case <-first:
	default:
		t.Fatal("first channel should be closed after broadcast")
	}

	second := s.Wait()
	select {
	case <-second:
		t.Fatal("fresh wait channel should not be closed yet")
	default:
	}
}

func TestRegistry_PerKeyIsolation(t *testing.T) {
	r := NewRegistry[int]()
	a := r.For(1)
	b := r.For(2)
	require.NotSame(t, a, b)

	waitA := a.Wait()
	waitB := b.Wait()

	r.Broadcast(1)

	select {
	case <-waitA:
	default:
		t.Fatal("key 1 waiter should have woken")
	}
	select {
	case <-waitB:
		t.Fatal("key 2 waiter should not have woken")
	default:
	}
}

func TestRegistry_BroadcastOnUnknownKeyIsNoop(t *testing.T) {
	r := NewRegistry[string]()
	r.Broadcast("never-registered")
}

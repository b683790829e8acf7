package channel

import (
	"testing"
	"time"
)

func TestBuffered_SendReceive(t *testing.T) {
	c := NewBuffered[int](2)
	defer c.Close()

	c.Send(1)
	c.Send(2)

	if got := <-c.Receive(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := <-c.Receive(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestBuffered_Len(t *testing.T) {
	c := NewBuffered[string](4)
	defer c.Close()

	if c.Len() != 0 {
		t.Errorf("expected 0, got %d", c.Len())
	}
	c.Send("a")
	c.Send("b")
	if c.Len() != 2 {
		t.Errorf("expected 2, got %d", c.Len())
	}
}

func TestBuffered_TrySendDropsWhenFull(t *testing.T) {
	c := NewBuffered[int](1)
	defer c.Close()

	if !c.TrySend(1) {
		t.Error("expected first TrySend to succeed")
	}
	if c.TrySend(2) {
		t.Error("expected TrySend on a full buffer to drop")
	}
	if got := <-c.Receive(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestUnbuffered_TrySendWithoutReceiver(t *testing.T) {
	c := NewUnbuffered[int]()
	defer c.Close()

	if c.TrySend(1) {
		t.Error("expected TrySend without a receiver to drop")
	}
	if c.Len() != 0 {
		t.Errorf("expected 0, got %d", c.Len())
	}
}

func TestUnbuffered_SendBlocksUntilReceived(t *testing.T) {
	c := NewUnbuffered[int]()
	defer c.Close()

	done := make(chan struct{})
	go func() {
		c.Send(42)
		close(done)
	}()

	select {
	case got := <-c.Receive():
		if got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for send")
	}
	<-done
}

func TestNew_ReturnsChannel(t *testing.T) {
	c := New[int](8)
	defer c.Close()

	if !c.TrySend(7) {
		t.Error("expected TrySend to succeed on a fresh channel")
	}
	if got := <-c.Receive(); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

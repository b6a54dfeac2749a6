package link

import (
	"testing"

	"github.com/danmuck/pgplink/internal/protocol"
)

func TestDataQueueFIFO(t *testing.T) {
	q := NewDataQueue()
	if _, ok := q.Pop(); ok {
		t.Fatalf("empty queue should pop nothing")
	}
	for i := uint32(1); i <= 3; i++ {
		q.Push(protocol.Frame{i})
	}
	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3", q.Len())
	}
	for i := uint32(1); i <= 3; i++ {
		f, ok := q.Pop()
		if !ok || f[0] != i {
			t.Fatalf("pop %d = (%#x,%v)", i, f, ok)
		}
	}
}

func TestDataQueueWakeupIsBestEffort(t *testing.T) {
	q := NewDataQueue()
	// Many pushes without a listener must never block.
	for i := 0; i < 16; i++ {
		q.Push(protocol.Frame{uint32(i)})
	}
	select {
	case <-q.Wakeup():
	default:
		t.Fatalf("wakeup should be pending after pushes")
	}
	select {
	case <-q.Wakeup():
		t.Fatalf("wakeup channel should hold at most one notification")
	default:
	}
}

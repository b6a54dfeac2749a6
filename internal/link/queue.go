package link

import (
	"sync"

	"github.com/danmuck/pgplink/internal/protocol"
)

// DataQueue is the unbounded FIFO of received data frames. Appended
// only by the receive classifier, drained only by the consumer; frames
// preserve per-link arrival order.
type DataQueue struct {
	mu     sync.Mutex
	frames []protocol.Frame
	wake   chan struct{}
}

func NewDataQueue() *DataQueue {
	return &DataQueue{wake: make(chan struct{}, 1)}
}

// Push appends one frame and issues a best-effort consumer wakeup.
func (q *DataQueue) Push(f protocol.Frame) {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the oldest frame, reporting whether one was present.
func (q *DataQueue) Pop() (protocol.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// Len returns the number of frames awaiting the consumer.
func (q *DataQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Wakeup is the consumer notification channel. Delivery is best-effort;
// consumers must re-check the queue on their own schedule as well.
func (q *DataQueue) Wakeup() <-chan struct{} {
	return q.wake
}

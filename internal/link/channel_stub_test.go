package link

import (
	"sync"
	"time"

	"github.com/danmuck/pgplink/internal/pgp"
	"github.com/danmuck/pgplink/internal/protocol"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

type sentFrame struct {
	frame protocol.Frame
	dst   routing.Destination
}

type rxEvent struct {
	frame protocol.Frame
	meta  pgp.RxMeta
}

// stubChannel is an in-memory pgp.Channel: sends are recorded, receives
// are scripted by Inject.
type stubChannel struct {
	mu       sync.Mutex
	sent     []sentFrame
	rx       []rxEvent
	busyLeft int
	closed   bool
}

func (s *stubChannel) Send(f protocol.Frame, dst routing.Destination) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, pgp.ErrClosed
	}
	if s.busyLeft > 0 {
		s.busyLeft--
		return 0, pgp.ErrWouldBlock
	}
	s.sent = append(s.sent, sentFrame{frame: f.Clone(), dst: dst})
	return f.Words(), nil
}

func (s *stubChannel) Receive(maxWords int) (protocol.Frame, pgp.RxMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, pgp.RxMeta{}, pgp.ErrClosed
	}
	if len(s.rx) == 0 {
		return nil, pgp.RxMeta{}, pgp.ErrNoData
	}
	ev := s.rx[0]
	s.rx = s.rx[1:]
	return ev.frame, ev.meta, nil
}

func (s *stubChannel) WaitReady() error {
	s.mu.Lock()
	empty := len(s.rx) == 0
	s.mu.Unlock()
	if empty {
		time.Sleep(200 * time.Microsecond)
	}
	return nil
}

func (s *stubChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubChannel) Inject(f protocol.Frame, meta pgp.RxMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append(s.rx, rxEvent{frame: f, meta: meta})
}

func (s *stubChannel) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubChannel) SentAt(i int) sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[i]
}

func (s *stubChannel) SetBusy(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyLeft = n
}

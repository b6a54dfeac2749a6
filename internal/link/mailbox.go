package link

import "sync"

// Mailbox is a single-slot pending-transaction holder. Post on an
// occupied slot is rejected rather than overwriting: the one-outstanding
// precondition is enforced by the type, not by caller convention.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
}

// Post places a transaction into the slot. Returns ErrMailboxBusy if
// the prior transaction has not been taken yet.
func (m *Mailbox[T]) Post(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return ErrMailboxBusy
	}
	m.value = v
	m.full = true
	return nil
}

// Take drains the slot, reporting whether a transaction was pending.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		var zero T
		return zero, false
	}
	v := m.value
	var zero T
	m.value = zero
	m.full = false
	return v, true
}

// Pending reports whether the slot is occupied.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

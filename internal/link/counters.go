package link

import "sync/atomic"

// Counters holds one (request, response) pair per traffic kind. A pair
// with request != response means one transaction of that kind is in
// flight; equality means idle. This is the only synchronization signal
// between a caller and the serving side of a mailbox.
type Counters struct {
	request  [numKinds]atomic.Uint32
	response [numKinds]atomic.Uint32
}

// Request records a new posted transaction of the kind.
func (c *Counters) Request(k Kind) {
	c.request[k].Add(1)
}

// Ack records completion of the in-flight transaction of the kind.
func (c *Counters) Ack(k Kind) {
	c.response[k].Add(1)
}

// InFlight reports whether a transaction of the kind is pending.
func (c *Counters) InFlight(k Kind) bool {
	return c.request[k].Load() != c.response[k].Load()
}

// Idle reports whether every kind has resolved.
func (c *Counters) Idle() bool {
	for k := 0; k < numKinds; k++ {
		if c.InFlight(Kind(k)) {
			return false
		}
	}
	return true
}

// Snapshot returns the current (request, response) pair for one kind.
func (c *Counters) Snapshot(k Kind) (request, response uint32) {
	return c.request[k].Load(), c.response[k].Load()
}

// Package pgp defines the device-channel contract the transports are
// built against: the minimal send/receive primitive over an opened PGP
// link, plus the destination mask used to split inbound traffic into
// data and control classes.
package pgp

import (
	"errors"

	"github.com/danmuck/pgplink/internal/protocol"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

var (
	// ErrWouldBlock signals transient non-readiness on send. It is never
	// a hard failure; callers decide the retry policy.
	ErrWouldBlock = errors.New("pgp: channel would block")

	// ErrNoData signals that no frame is pending on receive.
	ErrNoData = errors.New("pgp: no data")

	// ErrOpen wraps device open or memory-map failures. Fatal to the
	// link, no retry.
	ErrOpen = errors.New("pgp: open failed")

	// ErrClosed is returned once the channel has been closed.
	ErrClosed = errors.New("pgp: channel closed")
)

// RxMeta tags a received frame with its origin and the integrity flags
// reported by the channel alongside it.
type RxMeta struct {
	Lane      uint8
	VC        uint8
	EOFE      bool
	FIFOErr   bool
	LengthErr bool
}

// Integrity reports whether any channel-level integrity flag is set.
func (m RxMeta) Integrity() bool {
	return m.EOFE || m.FIFOErr || m.LengthErr
}

// Channel is the send/receive primitive over one opened link.
type Channel interface {
	// Send submits one frame to the destination, returning the number
	// of words accepted, or ErrWouldBlock on transient non-readiness.
	Send(f protocol.Frame, dst routing.Destination) (int, error)

	// Receive returns the next pending frame with its tag, or ErrNoData.
	// maxWords bounds the frame size accepted.
	Receive(maxWords int) (protocol.Frame, RxMeta, error)

	// WaitReady blocks at most the channel's readiness bound (~1ms)
	// until inbound data may be pending. Spurious returns are allowed.
	WaitReady() error

	Close() error
}

// DataMask is the link-wide destination mask, interpreted as a VC
// bitmask and a lane bitmask. Both bits must be set for an inbound
// frame to classify as data traffic.
type DataMask struct {
	VCs   uint8
	Lanes uint8
}

// Match classifies one (lane, vc) origin as data traffic.
func (m DataMask) Match(lane, vc uint8) bool {
	return (1<<vc)&m.VCs != 0 && (1<<lane)&m.Lanes != 0
}

// MaskFromSource unpacks the packed data-source word used by link
// configuration: bits 3:0 VC mask, bits 11:4 lane mask.
func MaskFromSource(src uint32) DataMask {
	return DataMask{
		VCs:   uint8(src & 0xF),
		Lanes: uint8(src >> 4 & 0xFF),
	}
}

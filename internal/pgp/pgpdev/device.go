// Package pgpdev implements the pgp.Channel contract over a PGP card
// device file. Each driver transfer is the frame prefixed by one
// descriptor word carrying the (lane, vc) pair and, inbound, the
// integrity flags.
package pgpdev

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/danmuck/pgplink/internal/pgp"
	"github.com/danmuck/pgplink/internal/protocol"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

const (
	descBytes = 4

	descVCShift   = 0
	descLaneShift = 4
	descEOFE      = 1 << 8
	descFIFOErr   = 1 << 9
	descLengthErr = 1 << 10

	// ioctl request programming the card's destination mask at open.
	reqSetMask = 0x5001

	regPageBytes = 4096

	readyTimeoutMS = 1
)

var _ pgp.Channel = (*Device)(nil)

// Device is one opened PGP card link.
type Device struct {
	path string
	fd   int
	page []byte
	mask pgp.DataMask
}

// Open opens the device file without blocking, programs the destination
// mask, and maps the card register page. Failures are fatal to the
// link and wrapped in pgp.ErrOpen.
func Open(path string, mask pgp.DataMask) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pgp.ErrOpen, path, err)
	}

	maskWord := uint32(mask.VCs) | uint32(mask.Lanes)<<4
	if err := unix.IoctlSetInt(fd, reqSetMask, int(maskWord)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: set mask on %s: %v", pgp.ErrOpen, path, err)
	}

	page, err := unix.Mmap(fd, 0, regPageBytes,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: mmap %s: %v", pgp.ErrOpen, path, err)
	}

	return &Device{path: path, fd: fd, page: page, mask: mask}, nil
}

// RegisterPage exposes the mapped card register page for the EVR
// control surface.
func (d *Device) RegisterPage() []byte { return d.page }

// Mask returns the destination mask the device was opened with.
func (d *Device) Mask() pgp.DataMask { return d.mask }

func (d *Device) Send(f protocol.Frame, dst routing.Destination) (int, error) {
	if d.fd < 0 {
		return 0, pgp.ErrClosed
	}
	buf := make([]byte, descBytes+f.ByteLen())
	desc := uint32(dst.VC)<<descVCShift | uint32(dst.Lane)<<descLaneShift
	binary.LittleEndian.PutUint32(buf, desc)
	copy(buf[descBytes:], f.Bytes())

	n, err := unix.Write(d.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, pgp.ErrWouldBlock
		}
		return 0, fmt.Errorf("pgpdev: write %s: %w", d.path, err)
	}
	if n < descBytes {
		return 0, pgp.ErrWouldBlock
	}
	return (n - descBytes) / protocol.WordBytes, nil
}

func (d *Device) Receive(maxWords int) (protocol.Frame, pgp.RxMeta, error) {
	if d.fd < 0 {
		return nil, pgp.RxMeta{}, pgp.ErrClosed
	}
	buf := make([]byte, descBytes+maxWords*protocol.WordBytes)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, pgp.RxMeta{}, pgp.ErrNoData
		}
		return nil, pgp.RxMeta{}, fmt.Errorf("pgpdev: read %s: %w", d.path, err)
	}
	if n == 0 {
		return nil, pgp.RxMeta{}, pgp.ErrNoData
	}
	if n < descBytes {
		return nil, pgp.RxMeta{LengthErr: true}, nil
	}

	desc := binary.LittleEndian.Uint32(buf)
	meta := pgp.RxMeta{
		VC:        uint8(desc >> descVCShift & 0xF),
		Lane:      uint8(desc >> descLaneShift & 0xF),
		EOFE:      desc&descEOFE != 0,
		FIFOErr:   desc&descFIFOErr != 0,
		LengthErr: desc&descLengthErr != 0,
	}

	f, err := protocol.FrameFromBytes(buf[descBytes:n])
	if err != nil {
		meta.LengthErr = true
		return nil, meta, nil
	}
	return f, meta, nil
}

// WaitReady polls the descriptor for inbound readiness, bounded at the
// channel's readiness timeout. Timeout is not an error; callers re-poll.
func (d *Device) WaitReady() error {
	if d.fd < 0 {
		return pgp.ErrClosed
	}
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, readyTimeoutMS)
	if err != nil && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("pgpdev: poll %s: %w", d.path, err)
	}
	return nil
}

func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	if d.page != nil {
		unix.Munmap(d.page)
		d.page = nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return fmt.Errorf("pgpdev: close %s: %w", d.path, err)
	}
	return nil
}

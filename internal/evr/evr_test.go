package evr

import (
	"errors"
	"testing"
)

func newTestBlock(t *testing.T) *Block {
	t.Helper()
	b, err := NewBlock(make([]byte, 4096))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	return b
}

func TestNewBlockRejectsShortPage(t *testing.T) {
	if _, err := NewBlock(make([]byte, 64)); !errors.Is(err, ErrShortPage) {
		t.Fatalf("expected ErrShortPage, got %v", err)
	}
}

func TestEnableBitRoundTrip(t *testing.T) {
	b := newTestBlock(t)
	if b.Enabled() {
		t.Fatalf("fresh block should be disabled")
	}
	b.SetEnabled(true)
	if !b.Enabled() {
		t.Fatalf("enable bit not set")
	}
	b.SetLaneMask(0xA5)
	b.SetEnabled(false)
	if b.Enabled() {
		t.Fatalf("enable bit not cleared")
	}
	if b.LaneMask() != 0xA5 {
		t.Fatalf("lane mask clobbered by enable toggle: %#x", b.LaneMask())
	}
}

func TestLaneMaskPreservesNeighborBits(t *testing.T) {
	b := newTestBlock(t)
	b.SetEnabled(true)
	b.SetLaneMask(0xFF)
	b.SetLaneMask(0x01)
	if b.LaneMask() != 0x01 {
		t.Fatalf("lane mask = %#x, want 0x01", b.LaneMask())
	}
	if !b.Enabled() {
		t.Fatalf("enable bit clobbered by lane mask write")
	}
}

func TestPerLaneCodeAndDelay(t *testing.T) {
	b := newTestBlock(t)
	for lane := uint8(0); lane < Lanes; lane++ {
		b.SetRunOpCode(lane, uint32(lane)+0x10)
		b.SetAcceptOpCode(lane, uint32(lane)+0x20)
		b.SetRunDelay(lane, uint32(lane)+0x30)
		b.SetAcceptDelay(lane, uint32(lane)+0x40)
	}
	for lane := uint8(0); lane < Lanes; lane++ {
		if b.RunOpCode(lane) != uint32(lane)+0x10 {
			t.Fatalf("lane %d run opcode = %#x", lane, b.RunOpCode(lane))
		}
		if b.AcceptOpCode(lane) != uint32(lane)+0x20 {
			t.Fatalf("lane %d accept opcode = %#x", lane, b.AcceptOpCode(lane))
		}
		if b.RunDelay(lane) != uint32(lane)+0x30 {
			t.Fatalf("lane %d run delay = %#x", lane, b.RunDelay(lane))
		}
		if b.AcceptDelay(lane) != uint32(lane)+0x40 {
			t.Fatalf("lane %d accept delay = %#x", lane, b.AcceptDelay(lane))
		}
	}
}

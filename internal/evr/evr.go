// Package evr exposes the event-receiver control and status bitfields of
// the mapped card register page. Plain read/modify/write on 32-bit
// words, no framing and no protocol logic.
package evr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Word offsets into the card register page.
const (
	offCardStat    = 0x0140 // 4 status/control words
	offRunCode     = 0x0180 // per-lane run opcode
	offAcceptCode  = 0x01A0 // per-lane accept opcode
	offRunDelay    = 0x01C0 // per-lane run delay
	offAcceptDelay = 0x01E0 // per-lane accept delay
	offCount       = 0x0200 // per-index event counters

	// Lanes is the number of physical lanes the card exposes.
	Lanes = 8

	pageMin = offCount + Lanes*4
)

var ErrShortPage = errors.New("evr: register page too small")

// Block is a view over the mapped register page. The page is assumed
// single-writer per field; there is no locking at this layer.
type Block struct {
	page []byte
}

// NewBlock wraps a mapped register page.
func NewBlock(page []byte) (*Block, error) {
	if len(page) < pageMin {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPage, len(page))
	}
	return &Block{page: page}, nil
}

func (b *Block) word(off int) uint32 {
	return binary.LittleEndian.Uint32(b.page[off:])
}

func (b *Block) setWord(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.page[off:], v)
}

func (b *Block) laneWord(base int, lane uint8) int {
	return base + int(lane%Lanes)*4
}

// LinkUp reports the EVR link status bit.
func (b *Block) LinkUp() bool {
	return b.word(offCardStat)>>4&0x1 == 1
}

// ErrorCount returns the accumulated EVR link error word.
func (b *Block) ErrorCount() uint32 {
	return b.word(offCardStat + 12)
}

// Count returns one per-index event counter.
func (b *Block) Count(idx uint8) uint32 {
	return b.word(b.laneWord(offCount, idx))
}

// Enabled reports the EVR enable bit.
func (b *Block) Enabled() bool {
	return b.word(offCardStat+4)&0x1 == 1
}

// SetEnabled sets or clears the EVR enable bit.
func (b *Block) SetEnabled(enable bool) {
	v := b.word(offCardStat + 4)
	if enable {
		v |= 0x1
	} else {
		v &^= 0x1
	}
	b.setWord(offCardStat+4, v)
}

// StatRaw returns the raw control/status word.
func (b *Block) StatRaw() uint32 {
	return b.word(offCardStat + 4)
}

// LaneMask returns the per-lane enable mask.
func (b *Block) LaneMask() uint8 {
	return uint8(b.word(offCardStat+4) >> 16 & 0xFF)
}

// SetLaneMask programs the per-lane enable mask, preserving the other
// control bits.
func (b *Block) SetLaneMask(mask uint8) {
	v := b.word(offCardStat+4) &^ 0x00FF0000
	v |= uint32(mask) << 16
	b.setWord(offCardStat+4, v)
}

// RunOpCode returns the run opcode programmed for one lane.
func (b *Block) RunOpCode(lane uint8) uint32 {
	return b.word(b.laneWord(offRunCode, lane))
}

// SetRunOpCode programs the run opcode for one lane.
func (b *Block) SetRunOpCode(lane uint8, code uint32) {
	b.setWord(b.laneWord(offRunCode, lane), code)
}

// AcceptOpCode returns the accept opcode programmed for one lane.
func (b *Block) AcceptOpCode(lane uint8) uint32 {
	return b.word(b.laneWord(offAcceptCode, lane))
}

// SetAcceptOpCode programs the accept opcode for one lane.
func (b *Block) SetAcceptOpCode(lane uint8, code uint32) {
	b.setWord(b.laneWord(offAcceptCode, lane), code)
}

// RunDelay returns the run delay programmed for one lane.
func (b *Block) RunDelay(lane uint8) uint32 {
	return b.word(b.laneWord(offRunDelay, lane))
}

// SetRunDelay programs the run delay for one lane.
func (b *Block) SetRunDelay(lane uint8, delay uint32) {
	b.setWord(b.laneWord(offRunDelay, lane), delay)
}

// AcceptDelay returns the accept delay programmed for one lane.
func (b *Block) AcceptDelay(lane uint8) uint32 {
	return b.word(b.laneWord(offAcceptDelay, lane))
}

// SetAcceptDelay programs the accept delay for one lane.
func (b *Block) SetAcceptDelay(lane uint8, delay uint32) {
	b.setWord(b.laneWord(offAcceptDelay, lane), delay)
}

package link

import "github.com/danmuck/pgplink/internal/protocol/routing"

// Kind is the traffic class of one transaction. Ordering is the fixed
// service priority: run before register before command before data.
type Kind = routing.Kind

const (
	KindRun      = routing.KindRun
	KindRegister = routing.KindRegister
	KindCommand  = routing.KindCommand
	KindData     = routing.KindData

	numKinds = 4
)

// Register is one register transaction. Data is both the write payload
// and the read destination buffer; its length is the transaction's
// declared word capacity and the expected reply word count.
type Register struct {
	Address uint32
	Data    []uint32
	Status  uint32
}

// NewRegister allocates a register transaction of the given word size.
func NewRegister(addr uint32, words int) *Register {
	return &Register{Address: addr, Data: make([]uint32, words)}
}

// Size returns the declared transaction size in words.
func (r *Register) Size() int { return len(r.Data) }

// Command is an out-of-band command or run transaction. Bits 7:0 carry
// the opcode byte; under the address routing profile bits 15:8 carry
// the destination (lane, vc) nibbles.
type Command struct {
	OpCode uint32
}

// Opcode returns the wire opcode byte.
func (c Command) Opcode() uint8 { return uint8(c.OpCode & 0xFF) }

// Data is one bulk data transaction. Dest is the one-hot destination
// field consumed by the address routing profile; the sync strategy
// ignores it and routes from the link configuration word.
type Data struct {
	Payload []byte
	Dest    uint32
}

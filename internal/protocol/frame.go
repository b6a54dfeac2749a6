package protocol

import "encoding/binary"

const (
	// WordBytes is the size of one frame word on the wire.
	WordBytes = 4

	// MinControlWords is the shortest valid control frame: two header
	// words, at least a trailer and one slot between them.
	MinControlWords = 4

	// WriteFlag marks header word 1 of a register write transaction.
	WriteFlag uint32 = 0x40000000

	// AddressMask selects the shifted register address in header word 1.
	AddressMask uint32 = 0x3FFFFFFF
)

// Frame is one discrete unit of transmission: header word(s), payload
// words, trailer word. Length is always expressed in 32-bit words.
type Frame []uint32

// Words returns the frame length in 32-bit words.
func (f Frame) Words() int { return len(f) }

// ByteLen returns the frame length in bytes.
func (f Frame) ByteLen() int { return len(f) * WordBytes }

// Bytes serializes the frame little-endian, one word at a time.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f)*WordBytes)
	for i, w := range f {
		binary.LittleEndian.PutUint32(buf[i*WordBytes:], w)
	}
	return buf
}

// Clone returns an independent copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// FrameFromBytes converts a raw byte buffer into a frame. A byte count
// not divisible by the word size indicates malformed input.
func FrameFromBytes(b []byte) (Frame, error) {
	if len(b)%WordBytes != 0 {
		return nil, ErrMisalignedLength
	}
	f := make(Frame, len(b)/WordBytes)
	for i := range f {
		f[i] = binary.LittleEndian.Uint32(b[i*WordBytes:])
	}
	return f, nil
}

// HeaderWords returns the two leading header words used for reply
// correlation. The frame must already be at least MinControlWords long.
func (f Frame) HeaderWords() [2]uint32 {
	return [2]uint32{f[0], f[1]}
}

// Status returns the trailing status word of an inbound control frame.
func (f Frame) Status() uint32 {
	return f[len(f)-1]
}

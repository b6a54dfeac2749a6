package protocol

import "fmt"

// EncodeRegisterRead builds a register read request. The requested word
// count rides in the trailer as count-1, so the frame is always exactly
// four words regardless of the read size.
func EncodeRegisterRead(ctx, addr uint32, readWords int) (Frame, error) {
	if readWords < 1 {
		return nil, fmt.Errorf("%w: %d", ErrReadSize, readWords)
	}
	f := make(Frame, 4)
	f[0] = ctx
	f[1] = (addr >> 2) & AddressMask
	f[2] = uint32(readWords - 1)
	f[3] = 0
	return f, nil
}

// EncodeRegisterWrite builds a register write request: two header words,
// the payload, and a zero terminator. capacity is the destination
// transaction's declared word capacity.
func EncodeRegisterWrite(ctx, addr uint32, payload []uint32, capacity int) (Frame, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > capacity {
		return nil, fmt.Errorf("%w: %d words into capacity %d",
			ErrPayloadTooLarge, len(payload), capacity)
	}
	f := make(Frame, len(payload)+3)
	f[0] = ctx
	f[1] = WriteFlag | ((addr >> 2) & AddressMask)
	copy(f[2:], payload)
	f[len(f)-1] = 0
	return f, nil
}

// EncodeCommand builds an out-of-band command frame.
func EncodeCommand(opcode uint8) Frame {
	return Frame{0, uint32(opcode), 0, 0}
}

// EncodeRun builds a run-command frame. Identical layout to a command
// frame; the distinction is scheduling priority, not wire format.
func EncodeRun(opcode uint8) Frame {
	return Frame{0, uint32(opcode), 0, 0}
}

// EncodeData wraps a raw payload as a data frame. The byte length must
// be a whole number of words.
func EncodeData(payload []byte) (Frame, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return FrameFromBytes(payload)
}

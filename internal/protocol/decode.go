package protocol

// RegisterReply is a decoded inbound register control frame.
type RegisterReply struct {
	Context uint32
	Address uint32
	Write   bool
	Payload []uint32
	Status  uint32
}

// PayloadWords returns the number of payload words carried by a control
// frame of n total words.
func PayloadWords(n int) int { return n - 3 }

// DecodeRegisterReply splits an inbound control frame into its register
// reply fields. The payload slice aliases the frame.
func DecodeRegisterReply(f Frame) (RegisterReply, error) {
	if f.Words() < MinControlWords {
		return RegisterReply{}, ErrShortFrame
	}
	return RegisterReply{
		Context: f[0],
		Address: (f[1] & AddressMask) << 2,
		Write:   f[1]&WriteFlag != 0,
		Payload: f[2 : f.Words()-1],
		Status:  f.Status(),
	}, nil
}

// DecodeOpcode extracts the opcode byte from a command or run frame.
func DecodeOpcode(f Frame) (uint8, error) {
	if f.Words() < MinControlWords {
		return 0, ErrShortFrame
	}
	return uint8(f[1] & 0xFF), nil
}

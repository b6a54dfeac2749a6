// Package routing resolves the (lane, virtual channel) destination for
// each traffic kind from a packed 32-bit link configuration word or from
// the transaction's own address/opcode bits, depending on the routing
// profile the deployment uses.
package routing

import (
	"errors"
	"fmt"
	"math/bits"
)

// Kind selects the traffic class being routed.
type Kind int

const (
	KindRun Kind = iota
	KindRegister
	KindCommand
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindRegister:
		return "register"
	case KindCommand:
		return "command"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Profile names one of the two deployed lane/VC extraction conventions.
// The layouts are not interchangeable; the profile is fixed per link at
// configuration time.
type Profile int

const (
	// ProfileLinkConfig extracts nibble pairs from the packed link
	// configuration word:
	//   bits 7:0   index (ignored)
	//   bits 11:8  VC for register transactions
	//   bits 15:12 lane for register transactions
	//   bits 19:16 VC for commands
	//   bits 23:20 lane for commands
	//   bits 27:24 VC for data
	//   bits 31:28 lane for data
	ProfileLinkConfig Profile = iota

	// ProfileAddress derives the destination from the transaction itself:
	// register lane/VC from the address upper bits (31:28 / 27:24),
	// command and run lane/VC from the opcode word (15:12 / 11:8), and
	// data lane/VC from one-hot bit fields (7:4 / 3:0).
	ProfileAddress
)

var (
	ErrBadOneHot      = errors.New("routing: one-hot field must have exactly one set bit")
	ErrUnknownKind    = errors.New("routing: unknown traffic kind")
	ErrUnknownProfile = errors.New("routing: unknown profile")
)

// Destination is a resolved (lane, virtual channel) pair.
type Destination struct {
	Lane uint8
	VC   uint8
}

func (d Destination) String() string {
	return fmt.Sprintf("lane=%d vc=%d", d.Lane, d.VC)
}

// Config is the packed 32-bit link configuration word.
type Config uint32

func (c Config) register() Destination {
	return Destination{Lane: uint8(c >> 12 & 0xF), VC: uint8(c >> 8 & 0xF)}
}

func (c Config) command() Destination {
	return Destination{Lane: uint8(c >> 20 & 0xF), VC: uint8(c >> 16 & 0xF)}
}

func (c Config) data() Destination {
	return Destination{Lane: uint8(c >> 28 & 0xF), VC: uint8(c >> 24 & 0xF)}
}

// OneHotIndex reduces a one-hot bit field to its index. Zero or multiple
// set bits is a configuration error.
func OneHotIndex(field uint32) (uint8, error) {
	if bits.OnesCount32(field) != 1 {
		return 0, fmt.Errorf("%w: %#x", ErrBadOneHot, field)
	}
	return uint8(bits.TrailingZeros32(field)), nil
}

// Resolve extracts the destination for one transaction. addrOrOp is the
// register address, the command/run opcode word, or the data one-hot
// destination field, per the profile in use.
func Resolve(kind Kind, profile Profile, cfg Config, addrOrOp uint32) (Destination, error) {
	switch profile {
	case ProfileLinkConfig:
		switch kind {
		case KindRegister:
			return cfg.register(), nil
		case KindCommand, KindRun:
			return cfg.command(), nil
		case KindData:
			return cfg.data(), nil
		}
		return Destination{}, fmt.Errorf("%w: %v", ErrUnknownKind, kind)

	case ProfileAddress:
		switch kind {
		case KindRegister:
			return Destination{
				Lane: uint8(addrOrOp >> 28 & 0xF),
				VC:   uint8(addrOrOp >> 24 & 0xF),
			}, nil
		case KindCommand, KindRun:
			return Destination{
				Lane: uint8(addrOrOp >> 12 & 0xF),
				VC:   uint8(addrOrOp >> 8 & 0xF),
			}, nil
		case KindData:
			lane, err := OneHotIndex(addrOrOp >> 4 & 0xF)
			if err != nil {
				return Destination{}, fmt.Errorf("data lane: %w", err)
			}
			vc, err := OneHotIndex(addrOrOp & 0xF)
			if err != nil {
				return Destination{}, fmt.Errorf("data vc: %w", err)
			}
			return Destination{Lane: lane, VC: vc}, nil
		}
		return Destination{}, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	return Destination{}, fmt.Errorf("%w: %d", ErrUnknownProfile, int(profile))
}

// ParseProfile maps a configuration string to a profile.
func ParseProfile(name string) (Profile, error) {
	switch name {
	case "", "linkconfig":
		return ProfileLinkConfig, nil
	case "address":
		return ProfileAddress, nil
	default:
		return ProfileLinkConfig, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}

package protocol

import "errors"

var (
	ErrShortFrame       = errors.New("protocol: frame shorter than minimum control length")
	ErrMisalignedLength = errors.New("protocol: byte length not a whole number of words")
	ErrPayloadTooLarge  = errors.New("protocol: payload exceeds declared capacity")
	ErrEmptyPayload     = errors.New("protocol: empty payload")
	ErrReadSize         = errors.New("protocol: read word count out of range")
	ErrFrameIntegrity   = errors.New("protocol: frame integrity failure")
	ErrUnexpectedFrame  = errors.New("protocol: frame matches no outstanding request")
	ErrReplyOverflow    = errors.New("protocol: reply payload exceeds destination capacity")
	ErrNotRegisterReply = errors.New("protocol: frame is not a register reply")
)

// Package protocol implements the binary frame format of dubbo-rpc.
//
// Every frame is a fixed 16-byte header followed by a body of BodyLen bytes.
// The body is produced by the codec named in the header's serialization bits.
//
// Frame format:
//
//	0     2     3      4                12        16
//	┌─────┬─────┬──────┬────────────────┬─────────┬───────────────┐
//	│magic│flags│status│   message id   │ bodyLen │    body ...   │
//	│dabb │     │      │     uint64     │ uint32  │ bodyLen bytes │
//	└─────┴─────┴──────┴────────────────┴─────────┴───────────────┘
//
//	flags: bit7 request │ bit6 two-way │ bit5 event │ bits0-4 serialization id
//
// All integers are big-endian (network byte order).
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"dubbo-rpc/codec"
)

const (
	HeaderSize = 16

	Magic     uint16 = 0xdabb
	MagicHigh byte   = 0xda
	MagicLow  byte   = 0xbb

	FlagRequest       byte = 0x80
	FlagTwoWay        byte = 0x40
	FlagEvent         byte = 0x20
	SerializationMask byte = 0x1f
)

var (
	ErrShortHeader  = errors.New("protocol: short header")
	ErrInvalidMagic = errors.New("protocol: invalid magic number")
)

// Header is the decoded form of the fixed 16-byte frame header.
type Header struct {
	Request       bool            // Client → server call; clear for responses
	TwoWay        bool            // Sender expects a response
	Event         bool            // Protocol event (heartbeat) rather than an application call
	Serialization codec.CodecType // Codec id of the body, 0-31
	Status        byte            // Response status; meaningless on requests
	ID            uint64          // Correlates a response to its request
	BodyLen       uint32          // Exact byte length of the body that follows
}

// Flags packs the direction, call semantics and serialization id into one byte.
func (h *Header) Flags() byte {
	flags := byte(h.Serialization) & SerializationMask
	if h.Request {
		flags |= FlagRequest
	}
	if h.TwoWay {
		flags |= FlagTwoWay
	}
	if h.Event {
		flags |= FlagEvent
	}
	return flags
}

func (h Header) String() string {
	dir := "response"
	if h.Request {
		dir = "request"
	}
	return fmt.Sprintf("%s id=%d flags=%#02x status=%d len=%d", dir, h.ID, h.Flags(), h.Status, h.BodyLen)
}

// PutHeader writes h into the first HeaderSize bytes of buf.
// It panics if buf is shorter than HeaderSize, like binary.BigEndian.PutUint64.
func PutHeader(buf []byte, h *Header) {
	_ = buf[HeaderSize-1]
	buf[0] = MagicHigh
	buf[1] = MagicLow
	buf[2] = h.Flags()
	buf[3] = h.Status
	binary.BigEndian.PutUint64(buf[4:12], h.ID)
	binary.BigEndian.PutUint32(buf[12:16], h.BodyLen)
}

// EncodeHeader returns the 16-byte wire form of h.
func EncodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, h)
	return buf
}

// DecodeHeader parses the first HeaderSize bytes of b.
// Only the magic number is validated; every other field is taken verbatim.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	if !hasMagic(b) {
		return Header{}, fmt.Errorf("%w: %x", ErrInvalidMagic, b[0:2])
	}
	flags := b[2]
	return Header{
		Request:       flags&FlagRequest != 0,
		TwoWay:        flags&FlagTwoWay != 0,
		Event:         flags&FlagEvent != 0,
		Serialization: codec.CodecType(flags & SerializationMask),
		Status:        b[3],
		ID:            binary.BigEndian.Uint64(b[4:12]),
		BodyLen:       binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

func hasMagic(b []byte) bool {
	return len(b) >= 2 && b[0] == MagicHigh && b[1] == MagicLow
}

// Package codec holds the pluggable serializers that turn a message body into
// bytes and back. Each serializer is identified by a 5-bit id that travels in
// the frame header flags, so the receiver can pick the same scheme the sender
// used.
package codec

import (
	"errors"
	"fmt"
	"sync"

	"dubbo-rpc/message"
)

type CodecType byte

const (
	CodecTypeHessian2 CodecType = 2
	CodecTypeJSON     CodecType = 6
	CodecTypeProtobuf CodecType = 21

	// MaxCodecType is the largest id the header's serialization bits can hold.
	MaxCodecType CodecType = 0x1f
)

var (
	ErrUnknownCodec     = errors.New("codec: unknown codec type")
	ErrInvalidCodecType = errors.New("codec: codec type out of range")
	ErrInvalidMessage   = errors.New("codec: kind does not match message body")
	ErrUnknownKind      = errors.New("codec: unknown message kind")
)

// Codec serializes request and response bodies.
// Implementations must be safe for concurrent use; the frame encoder and
// every connection's decoder share them.
type Codec interface {
	Encode(m message.Message) ([]byte, error)
	Decode(data []byte, kind message.Kind) (message.Message, error)
	Type() CodecType
	Name() string
}

var (
	mu     sync.RWMutex
	codecs [MaxCodecType + 1]Codec
)

func init() {
	for _, c := range []Codec{&Hessian2Codec{}, &JSONCodec{}, &ProtobufCodec{}} {
		if err := Register(c); err != nil {
			panic(err)
		}
	}
}

// Register installs c under c.Type(), replacing any previous codec with that id.
func Register(c Codec) error {
	t := c.Type()
	if t > MaxCodecType {
		return fmt.Errorf("%w: %d", ErrInvalidCodecType, t)
	}
	mu.Lock()
	codecs[t] = c
	mu.Unlock()
	return nil
}

// Unregister removes the codec for t. Mostly useful in tests.
func Unregister(t CodecType) {
	if t > MaxCodecType {
		return
	}
	mu.Lock()
	codecs[t] = nil
	mu.Unlock()
}

// GetCodec looks up the codec registered for t.
func GetCodec(t CodecType) (Codec, error) {
	if t > MaxCodecType {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCodecType, t)
	}
	mu.RLock()
	c := codecs[t]
	mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, t)
	}
	return c, nil
}

func checkMessage(m message.Message) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// ByName looks up a registered codec by its Name, as used in config files.
func ByName(name string) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range codecs {
		if c != nil && c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

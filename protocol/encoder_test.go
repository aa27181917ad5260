package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubbo-rpc/codec"
	"dubbo-rpc/message"
)

func TestEncodeRequestHeader(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeHessian2)
	var buf bytes.Buffer
	req := &message.Request{ID: 1, Interface: "Foo", Method: "bar"}
	require.NoError(t, enc.EncodeRequest(&buf, req))

	frame := buf.Bytes()
	require.Greater(t, len(frame), HeaderSize)
	assert.Equal(t, []byte{MagicHigh, MagicLow}, frame[0:2])
	assert.NotZero(t, frame[2]&FlagRequest)
	assert.NotZero(t, frame[2]&FlagTwoWay)
	assert.Zero(t, frame[2]&FlagEvent)
	assert.Equal(t, byte(codec.CodecTypeHessian2), frame[2]&SerializationMask)
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(frame[4:12]))
	assert.Equal(t, uint32(len(frame)-HeaderSize), binary.BigEndian.Uint32(frame[12:16]))
}

func TestEncodeOneWayAndEvent(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeJSON)
	frame, err := enc.AppendRequest(nil, &message.Request{ID: 2, OneWay: true, Event: true})
	require.NoError(t, err)
	assert.Equal(t, FlagRequest|FlagEvent|byte(codec.CodecTypeJSON), frame[2])
}

func TestEncodeResponseHeader(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeJSON)
	frame, err := enc.AppendResponse(nil, &message.Response{ID: 77, Status: message.StatusServiceError, Exception: "boom"})
	require.NoError(t, err)

	h, err := DecodeHeader(frame)
	require.NoError(t, err)
	assert.False(t, h.Request)
	assert.False(t, h.TwoWay)
	assert.Equal(t, byte(message.StatusServiceError), h.Status)
	assert.Equal(t, uint64(77), h.ID)
	assert.Equal(t, codec.CodecTypeJSON, h.Serialization)
}

func TestLengthInvariant(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeHessian2)
	for _, size := range []int{0, 1, 100, 70000} {
		payload := string(bytes.Repeat([]byte{'x'}, size))
		frame, err := enc.AppendResponse(nil, &message.Response{ID: 1, Value: payload})
		require.NoError(t, err)

		h, err := DecodeHeader(frame)
		require.NoError(t, err)
		assert.Equal(t, len(frame)-HeaderSize, int(h.BodyLen), "payload %d", size)
	}
}

func TestAppendKeepsExistingBytes(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeJSON)
	prefix := []byte("prefix")
	out, err := enc.AppendRequest(append([]byte(nil), prefix...), &message.Request{ID: 5, Method: "m"})
	require.NoError(t, err)
	assert.Equal(t, prefix, out[:len(prefix)])
	assert.Equal(t, []byte{MagicHigh, MagicLow}, out[len(prefix):len(prefix)+2])
}

func TestEncodeFailureWritesNothing(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeJSON)
	var buf bytes.Buffer
	// channels cannot be marshaled
	err := enc.EncodeResponse(&buf, &message.Response{ID: 1, Value: make(chan int)})
	require.Error(t, err)
	assert.Zero(t, buf.Len())

	dst := []byte("keep")
	out, err := enc.AppendResponse(dst, &message.Response{ID: 1, Value: make(chan int)})
	require.Error(t, err)
	assert.Equal(t, []byte("keep"), out)
}

func TestEncodeUnknownSerialization(t *testing.T) {
	enc := NewEncoder(29)
	var buf bytes.Buffer
	err := enc.EncodeRequest(&buf, &message.Request{ID: 1})
	assert.ErrorIs(t, err, codec.ErrUnknownCodec)
	assert.Zero(t, buf.Len())
}

func TestEncodeInvalidMessage(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeJSON)
	_, err := enc.Append(nil, message.Message{Kind: message.KindRequest})
	assert.ErrorIs(t, err, codec.ErrInvalidMessage)
}

func TestEncodeBodyTooLarge(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeJSON, WithMaxBodyLen(8))
	_, err := enc.AppendResponse(nil, &message.Response{ID: 1, Value: "more than eight bytes"})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestWithSerialization(t *testing.T) {
	enc := NewEncoder(codec.CodecTypeHessian2)
	json := enc.WithSerialization(codec.CodecTypeJSON)
	assert.Equal(t, codec.CodecTypeHessian2, enc.Serialization())
	assert.Equal(t, codec.CodecTypeJSON, json.Serialization())
}

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubbo-rpc/codec"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := Header{
		Request:       true,
		TwoWay:        true,
		Serialization: codec.CodecTypeHessian2,
		ID:            0x0102030405060708,
		BodyLen:       11,
	}
	buf := EncodeHeader(&h)
	require.Len(t, buf, HeaderSize)

	assert.Equal(t, []byte{
		0xda, 0xbb, // magic
		0xc2,                                           // request | two-way | hessian2
		0x00,                                           // status
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // id
		0x00, 0x00, 0x00, 0x0b, // body length
	}, buf)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderFlags(t *testing.T) {
	cases := []struct {
		name string
		h    Header
		want byte
	}{
		{"response", Header{Serialization: codec.CodecTypeJSON}, 0x06},
		{"two-way request", Header{Request: true, TwoWay: true, Serialization: 2}, 0xc2},
		{"one-way request", Header{Request: true, Serialization: 2}, 0x82},
		{"heartbeat", Header{Request: true, TwoWay: true, Event: true, Serialization: 2}, 0xe2},
		{"event response", Header{Event: true, Serialization: 21}, 0x35},
		{"serialization masked", Header{Serialization: 0xff}, 0x1f},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.h.Flags())
		})
	}
}

func TestDecodeHeaderResponseStatus(t *testing.T) {
	h := Header{Status: 20, ID: 99, BodyLen: 1 << 20, Serialization: codec.CodecTypeProtobuf}
	got, err := DecodeHeader(EncodeHeader(&h))
	require.NoError(t, err)
	assert.False(t, got.Request)
	assert.Equal(t, byte(20), got.Status)
	assert.Equal(t, uint32(1<<20), got.BodyLen)
	assert.Equal(t, codec.CodecTypeProtobuf, got.Serialization)
}

func TestDecodeHeaderErrors(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortHeader)

	bad := EncodeHeader(&Header{ID: 1})
	bad[1] = 0x00
	_, err = DecodeHeader(bad)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestPutHeaderIntoLargerBuffer(t *testing.T) {
	buf := make([]byte, 32)
	PutHeader(buf[8:], &Header{ID: 3})
	assert.Equal(t, []byte{MagicHigh, MagicLow}, buf[8:10])
	assert.Equal(t, make([]byte, 8), buf[:8])
}

package protocol

import (
	"fmt"
	"io"
	"math"

	"dubbo-rpc/codec"
	"dubbo-rpc/message"
)

// Encoder turns messages into frames using one serialization scheme.
// It holds no per-message state and is safe for concurrent use.
type Encoder struct {
	serialization codec.CodecType
	opts          options
}

func NewEncoder(serialization codec.CodecType, opts ...Option) *Encoder {
	return &Encoder{serialization: serialization, opts: buildOptions(opts)}
}

// WithSerialization returns a copy of e that encodes with t.
// Servers use it to answer in the scheme the request arrived in.
func (e *Encoder) WithSerialization(t codec.CodecType) *Encoder {
	return &Encoder{serialization: t, opts: e.opts}
}

func (e *Encoder) Serialization() codec.CodecType {
	return e.serialization
}

// Append encodes m as one frame and appends it to dst.
//
// The header slot is reserved first and backfilled once the body length is
// known. On error the returned slice is dst unchanged: a failed encode never
// leaves a partial frame behind.
func (e *Encoder) Append(dst []byte, m message.Message) ([]byte, error) {
	if !m.Valid() {
		return dst, fmt.Errorf("protocol: encode: %w", codec.ErrInvalidMessage)
	}
	c, err := codec.GetCodec(e.serialization)
	if err != nil {
		return dst, fmt.Errorf("protocol: encode: %w", err)
	}

	h := Header{Serialization: e.serialization}
	if m.Kind == message.KindRequest {
		h.Request = true
		h.TwoWay = !m.Request.OneWay
		h.Event = m.Request.Event
		h.ID = m.Request.ID
	} else {
		h.Status = byte(m.Response.Status)
		h.Event = m.Response.Event
		h.ID = m.Response.ID
	}
	m.Serialization = byte(e.serialization)

	body, err := c.Encode(m)
	if err != nil {
		return dst, fmt.Errorf("protocol: encode %s %d: %w", m.Kind, h.ID, err)
	}
	if uint64(len(body)) > math.MaxUint32 || uint32(len(body)) > e.opts.maxBodyLen {
		return dst, fmt.Errorf("protocol: encode %s %d: %w: %d", m.Kind, h.ID, ErrBodyTooLarge, len(body))
	}
	h.BodyLen = uint32(len(body))

	start := len(dst)
	dst = append(dst, make([]byte, HeaderSize)...)
	dst = append(dst, body...)
	PutHeader(dst[start:], &h)
	return dst, nil
}

func (e *Encoder) AppendRequest(dst []byte, req *message.Request) ([]byte, error) {
	return e.Append(dst, message.NewRequestMessage(req))
}

func (e *Encoder) AppendResponse(dst []byte, res *message.Response) ([]byte, error) {
	return e.Append(dst, message.NewResponseMessage(res))
}

// Encode writes m to w as a single Write call.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different calls can interleave and corrupt the stream.
func (e *Encoder) Encode(w io.Writer, m message.Message) error {
	frame, err := e.Append(nil, m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

func (e *Encoder) EncodeRequest(w io.Writer, req *message.Request) error {
	return e.Encode(w, message.NewRequestMessage(req))
}

func (e *Encoder) EncodeResponse(w io.Writer, res *message.Response) error {
	return e.Encode(w, message.NewResponseMessage(res))
}

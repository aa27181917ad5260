package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"dubbo-rpc/codec"
	"dubbo-rpc/message"
)

// DefaultMaxBodyLen caps the body length a decoder will buffer for one frame.
const DefaultMaxBodyLen uint32 = 8 << 20

var (
	// ErrIncomplete is returned by Decoder.Next when the buffered bytes do not
	// yet hold a whole frame. It is a signal to feed more data, not a failure.
	ErrIncomplete = errors.New("protocol: incomplete frame")

	ErrBodyTooLarge = errors.New("protocol: body length exceeds limit")
)

var magicBytes = []byte{MagicHigh, MagicLow}

// FrameError reports a frame that was located on the stream but could not be
// turned into a message. The frame's bytes are already consumed, so the next
// call continues with whatever follows it.
type FrameError struct {
	Header Header
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("protocol: bad frame (%s): %v", e.Header, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

type options struct {
	maxBodyLen uint32
}

// Option configures a Decoder or Encoder.
type Option func(*options)

// WithMaxBodyLen sets the largest body length accepted or produced.
func WithMaxBodyLen(n uint32) Option {
	return func(o *options) {
		o.maxBodyLen = n
	}
}

func buildOptions(opts []Option) options {
	o := options{maxBodyLen: DefaultMaxBodyLen}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type phase int

const (
	awaitingHeader phase = iota
	awaitingBody
)

// Decoder turns a byte stream, delivered in chunks of any size, into messages.
//
// It owns the bytes of one connection: a window of unconsumed input and the
// header of the frame whose body it is waiting for. A Decoder is not safe for
// concurrent use; feed it from the connection's single read loop.
//
// When the window does not start with the magic number the decoder scans
// forward for the next occurrence and silently drops everything before it.
// This skips garbage, foreign probes (telnet, HTTP) and stream corruption.
type Decoder struct {
	buf    bytes.Buffer
	phase  phase
	header Header // valid while phase == awaitingBody
	opts   options
}

func NewDecoder(opts ...Option) *Decoder {
	return &Decoder{opts: buildOptions(opts)}
}

// Feed appends p to the window. p is copied.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Buffered returns the number of bytes held in the window.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Reset drops all buffered bytes and starts over looking for a header.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.phase = awaitingHeader
	d.header = Header{}
}

// Decode feeds p and returns every message completed by it, in stream order.
//
// If a frame fails (*FrameError), Decode returns the messages before it and
// the error. Frames buffered after the failed one are kept; call Decode again
// (p may be nil) to continue.
func (d *Decoder) Decode(p []byte) ([]message.Message, error) {
	d.Feed(p)
	var out []message.Message
	for {
		msg, err := d.Next()
		if errors.Is(err, ErrIncomplete) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

// Next decodes at most one frame from the window.
// It returns ErrIncomplete when more bytes are needed and *FrameError when a
// frame was consumed but could not be decoded.
func (d *Decoder) Next() (message.Message, error) {
	if d.phase == awaitingHeader {
		if err := d.readHeader(); err != nil {
			return message.Message{}, err
		}
	}

	h := d.header
	if d.buf.Len() < int(h.BodyLen) {
		return message.Message{}, ErrIncomplete
	}
	body := make([]byte, h.BodyLen)
	d.buf.Read(body)
	d.phase = awaitingHeader
	d.header = Header{}

	msg, err := decodeBody(h, body)
	if err != nil {
		return message.Message{}, &FrameError{Header: h, Err: err}
	}
	return msg, nil
}

// readHeader aligns the window on the magic number and consumes one header.
func (d *Decoder) readHeader() error {
	for {
		window := d.buf.Bytes()
		if len(window) < len(magicBytes) {
			return ErrIncomplete
		}
		if !hasMagic(window) {
			if i := bytes.Index(window[1:], magicBytes); i >= 0 {
				d.buf.Next(i + 1)
				continue
			}
			// The last byte may be the first half of a magic split across reads.
			d.buf.Next(len(window) - 1)
			return ErrIncomplete
		}
		if len(window) < HeaderSize {
			return ErrIncomplete
		}

		h, err := DecodeHeader(window)
		if err != nil {
			return err
		}
		if h.BodyLen > d.opts.maxBodyLen {
			// Step past this magic so the next call resyncs on what follows.
			d.buf.Next(1)
			return &FrameError{Header: h, Err: fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, h.BodyLen, d.opts.maxBodyLen)}
		}
		d.buf.Next(HeaderSize)
		d.header = h
		d.phase = awaitingBody
		return nil
	}
}

// decodeBody runs the codec named by the header and copies the header-carried
// fields onto the result.
func decodeBody(h Header, body []byte) (message.Message, error) {
	c, err := codec.GetCodec(h.Serialization)
	if err != nil {
		return message.Message{}, err
	}
	kind := message.KindResponse
	if h.Request {
		kind = message.KindRequest
	}
	msg, err := c.Decode(body, kind)
	if err != nil {
		return message.Message{}, err
	}
	if msg.Kind != kind || !msg.Valid() {
		return message.Message{}, fmt.Errorf("%w: codec %s returned %s", codec.ErrInvalidMessage, c.Name(), msg.Kind)
	}

	msg.Serialization = byte(h.Serialization)
	if kind == message.KindRequest {
		msg.Request.ID = h.ID
		msg.Request.OneWay = !h.TwoWay
		msg.Request.Event = h.Event
	} else {
		msg.Response.ID = h.ID
		msg.Response.Status = message.Status(h.Status)
		msg.Response.Event = h.Event
	}
	return msg, nil
}

package protocol

import (
	"errors"
	"io"

	"dubbo-rpc/message"
)

const readChunk = 4096

// Reader pulls messages off an io.Reader such as a net.Conn.
// It reads whatever the source delivers and lets the Decoder sort out frame
// boundaries, so short reads and several frames per read both work.
type Reader struct {
	r   io.Reader
	d   *Decoder
	buf []byte
	err error // sticky read error, returned once the buffered frames are drained
}

func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		r:   r,
		d:   NewDecoder(opts...),
		buf: make([]byte, readChunk),
	}
}

// ReadMessage returns the next message. A *FrameError leaves the Reader
// usable; any other error is final. A stream that ends inside a frame,
// header included, reports io.ErrUnexpectedEOF. Trailing bytes that never
// reached a magic number are noise and end the stream with io.EOF.
func (r *Reader) ReadMessage() (message.Message, error) {
	for {
		msg, err := r.d.Next()
		if !errors.Is(err, ErrIncomplete) {
			return msg, err
		}
		if r.err != nil {
			if r.err == io.EOF && (r.d.phase == awaitingBody || hasMagic(r.d.buf.Bytes())) {
				return message.Message{}, io.ErrUnexpectedEOF
			}
			return message.Message{}, r.err
		}
		n, err := r.r.Read(r.buf)
		r.d.Feed(r.buf[:n])
		r.err = err
	}
}

// Package transport implements the client-side transport layer with multiplexing and heartbeat.
//
// ClientTransport enables multiple concurrent RPC calls over a single TCP connection.
// Each request gets a unique message id, and a background goroutine (recvLoop)
// feeds the connection's frame decoder and routes every response to its caller.
//
//	goroutine-1 ──Send(id=1)──┐
//	goroutine-2 ──Send(id=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(id=3)──┘
//
//	recvLoop:  ←── response(id=2) → pending[2] chan ← response → goroutine-2 wakes up
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"dubbo-rpc/codec"
	"dubbo-rpc/message"
	"dubbo-rpc/protocol"
)

// DefaultHeartbeatInterval is how often an idle-or-not connection is probed.
const DefaultHeartbeatInterval = 30 * time.Second

var ErrClosed = errors.New("transport: connection closed")

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn
	encoder *protocol.Encoder
	seq     atomic.Uint64 // Monotonically increasing message id
	pending sync.Map      // map[uint64]chan *message.Response; each request waits on its own channel
	sending sync.Mutex    // Serializes writes so frames from different requests never interleave

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	heartbeat time.Duration
	protoOpts []protocol.Option
	logger    *zap.Logger
}

type Option func(*ClientTransport)

// WithHeartbeat sets the heartbeat interval; zero or negative disables heartbeats.
func WithHeartbeat(interval time.Duration) Option {
	return func(t *ClientTransport) {
		t.heartbeat = interval
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *ClientTransport) {
		t.logger = logger
	}
}

func WithMaxBodyLen(n uint32) Option {
	return func(t *ClientTransport) {
		t.protoOpts = append(t.protoOpts, protocol.WithMaxBodyLen(n))
	}
}

// NewClientTransport creates a transport for the given connection and starts two background goroutines:
//   - recvLoop: continuously reads responses from the connection and dispatches to pending callers
//   - heartbeatLoop: sends periodic heartbeat events to detect dead connections
func NewClientTransport(conn net.Conn, serialization codec.CodecType, opts ...Option) *ClientTransport {
	t := &ClientTransport{
		conn:      conn,
		done:      make(chan struct{}),
		heartbeat: DefaultHeartbeatInterval,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.encoder = protocol.NewEncoder(serialization, t.protoOpts...)
	t.logger = t.logger.With(zap.Stringer("remote", conn.RemoteAddr()))

	go t.recvLoop()
	if t.heartbeat > 0 {
		go t.heartbeatLoop(t.heartbeat)
	}
	return t
}

// Send assigns req the next message id, encodes it and writes it to the connection.
// It returns the id and, for two-way requests, a channel that receives the response.
// One-way requests get a nil channel.
func (t *ClientTransport) Send(req *message.Request) (uint64, <-chan *message.Response, error) {
	if t.closed.Load() {
		return 0, nil, ErrClosed
	}
	id := t.seq.Add(1)
	req.ID = id
	if req.Version == "" {
		req.Version = message.DefaultVersion
	}

	// Encoding needs no lock; a failure here never touches the connection.
	frame, err := t.encoder.AppendRequest(nil, req)
	if err != nil {
		return 0, nil, err
	}

	var respChan chan *message.Response
	if !req.OneWay {
		// Register BEFORE writing, so recvLoop can never see a response it can't route.
		respChan = make(chan *message.Response, 1) // Buffered so recvLoop never blocks
		t.pending.Store(id, respChan)
	}

	t.sending.Lock()
	_, err = t.conn.Write(frame)
	t.sending.Unlock()
	if err != nil {
		t.pending.Delete(id)
		return 0, nil, err
	}

	// closeAllPending may have run between the closed check and Store.
	if t.closed.Load() && respChan != nil {
		if _, ok := t.pending.LoadAndDelete(id); ok {
			return 0, nil, ErrClosed
		}
	}
	return id, respChan, nil
}

// Call sends req and waits for its response or for ctx to end.
func (t *ClientTransport) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	id, ch, err := t.Send(req)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		t.Cancel(id)
		return nil, ctx.Err()
	}
}

// Cancel forgets a pending call; a late response for it is dropped.
func (t *ClientTransport) Cancel(id uint64) {
	t.pending.Delete(id)
}

// recvLoop is the only reader of the connection: the frame decoder's window
// is per-connection state and must be fed sequentially.
func (t *ClientTransport) recvLoop() {
	reader := protocol.NewReader(t.conn, t.protoOpts...)
	for {
		msg, err := reader.ReadMessage()
		var frameErr *protocol.FrameError
		if errors.As(err, &frameErr) {
			t.logger.Warn("dropping bad frame", zap.Error(err))
			if h := frameErr.Header; !h.Request {
				t.deliver(&message.Response{
					ID:        h.ID,
					Status:    message.StatusBadResponse,
					Exception: frameErr.Err.Error(),
				})
			}
			continue
		}
		if err != nil {
			t.closeAllPending(err)
			return
		}

		switch {
		case msg.Kind == message.KindRequest:
			t.logger.Debug("ignoring request frame from server", zap.Uint64("id", msg.ID()))
		case msg.Response.Event:
			// heartbeat acknowledgement
		default:
			t.deliver(msg.Response)
		}
	}
}

func (t *ClientTransport) deliver(res *message.Response) {
	if channel, ok := t.pending.LoadAndDelete(res.ID); ok {
		channel.(chan *message.Response) <- res
	}
}

// closeAllPending is called when the connection breaks. It fails every
// pending call so no caller blocks forever waiting for a response.
func (t *ClientTransport) closeAllPending(err error) {
	t.closed.Store(true)
	t.logger.Debug("connection lost", zap.Error(err))
	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(chan *message.Response) <- &message.Response{
				ID:        key.(uint64),
				Status:    message.StatusClientError,
				Exception: err.Error(),
			}
		}
		return true
	})
	t.closeOnce.Do(func() { close(t.done) })
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// Closed reports whether the connection has failed or been closed.
func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

// Close closes the connection; pending calls fail with a ClientError response.
func (t *ClientTransport) Close() error {
	t.closed.Store(true)
	t.closeOnce.Do(func() { close(t.done) })
	return t.conn.Close()
}

// heartbeatLoop sends a two-way heartbeat event every interval. The server
// answers with an event response, which recvLoop swallows.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		frame, err := t.encoder.AppendRequest(nil, &message.Request{
			ID:      t.seq.Add(1),
			Version: message.DefaultVersion,
			Event:   true,
		})
		if err != nil {
			t.logger.Error("failed to encode heartbeat", zap.Error(err))
			return
		}
		t.sending.Lock()
		_, err = t.conn.Write(frame)
		t.sending.Unlock()
		if err != nil {
			return // Connection broken, exit heartbeat loop
		}
	}
}

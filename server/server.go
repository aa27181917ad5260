// Package server implements the RPC server with service registration, middleware chain,
// parallel request processing, and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine feeds the connection's frame decoder)
//	  → for each request: go handleRequest (parallel processing)
//	    → Middleware Chain → businessHandler (reflect.Call) → Encoder → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dubbo-rpc/codec"
	"dubbo-rpc/message"
	"dubbo-rpc/middleware"
	"dubbo-rpc/protocol"
	"dubbo-rpc/registry"
)

// DefaultRegistryTTL is the etcd lease TTL, in seconds, for registered services.
const DefaultRegistryTTL int64 = 10

// Server is the RPC server that registers services and handles incoming requests.
type Server struct {
	mu            sync.RWMutex
	serviceMap    map[string]*service // Registered services: "Arith" → *service
	listener      net.Listener
	conns         map[net.Conn]struct{} // Open connections, closed on shutdown
	wg            sync.WaitGroup        // Tracks in-flight requests for graceful shutdown
	shutdown      atomic.Bool           // Set during shutdown to suppress Accept errors
	middlewares   []middleware.Middleware
	handler       middleware.HandlerFunc // middleware(middleware(...(businessHandler)))
	registry      registry.Registry      // nil if not using discovery
	advertiseAddr string                 // Routable address registered in the registry

	serialization codec.CodecType
	encoder       *protocol.Encoder // fallback when a request's own serialization can't be used
	protoOpts     []protocol.Option
	registryTTL   int64
	logger        *zap.Logger
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxBodyLen bounds the frames the server accepts and sends.
func WithMaxBodyLen(n uint32) Option {
	return func(s *Server) {
		s.protoOpts = append(s.protoOpts, protocol.WithMaxBodyLen(n))
	}
}

// WithSerialization sets the codec used when a reply cannot be encoded with
// the request's own codec.
func WithSerialization(t codec.CodecType) Option {
	return func(s *Server) {
		s.serialization = t
	}
}

func WithRegistryTTL(ttl int64) Option {
	return func(s *Server) {
		s.registryTTL = ttl
	}
}

// NewServer creates a new RPC server with an empty service map.
func NewServer(opts ...Option) *Server {
	s := &Server{
		serviceMap:    make(map[string]*service),
		conns:         make(map[net.Conn]struct{}),
		serialization: codec.CodecTypeHessian2,
		registryTTL:   DefaultRegistryTTL,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.encoder = protocol.NewEncoder(s.serialization, s.protoOpts...)
	return s
}

// Register registers a service receiver (e.g., &Arith{}) with the server.
// The struct's exported methods that match the RPC signature will be available for remote calls.
func (svr *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if _, dup := svr.serviceMap[svc.name]; dup {
		return fmt.Errorf("rpc: service already defined: %s", svc.name)
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on the given address and serves until Shutdown.
//
// Parameters:
//   - advertiseAddr: the address to register (e.g., "127.0.0.1:8080").
//     This differs from the listen address because ":8080" resolves to "[::]:8080" locally.
//   - reg: the registry implementation. Pass nil to skip service discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener, advertiseAddr, reg)
}

// ServeListener is Serve on an existing listener.
func (svr *Server) ServeListener(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	svr.mu.Lock()
	svr.listener = listener
	svr.advertiseAddr = advertiseAddr
	svr.registry = reg
	// Built once at startup: Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)
	names := make([]string, 0, len(svr.serviceMap))
	for name := range svr.serviceMap {
		names = append(names, name)
	}
	svr.mu.Unlock()

	if svr.shutdown.Load() {
		listener.Close()
		return nil
	}

	if reg != nil {
		for _, name := range names {
			err := reg.Register(context.Background(), name, registry.ServiceInstance{Addr: advertiseAddr}, svr.registryTTL)
			if err != nil {
				listener.Close()
				return fmt.Errorf("rpc: register %s: %w", name, err)
			}
		}
	}
	svr.logger.Info("serving", zap.Stringer("addr", listener.Addr()), zap.Strings("services", names))

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// listener.Close() during shutdown makes Accept fail; that is not an error.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if !svr.trackConn(conn) {
			conn.Close()
			return nil
		}
		go svr.handleConn(conn)
	}
}

func (svr *Server) trackConn(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

// beginRequest counts a request as in flight, unless shutdown has begun.
func (svr *Server) beginRequest() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

func (svr *Server) untrackConn(conn net.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
}

// handleConn processes a single TCP connection.
// Reads stay on this goroutine because the decoder's window is per-connection
// state; each request is then handled on its own goroutine.
//
// A per-connection write mutex (writeMu) is shared among all request goroutines on this connection.
// This prevents frame interleaving when multiple goroutines write responses concurrently.
func (svr *Server) handleConn(conn net.Conn) {
	defer svr.untrackConn(conn)
	defer conn.Close()

	log := svr.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	writeMu := &sync.Mutex{}
	reader := protocol.NewReader(conn, svr.protoOpts...)
	for {
		msg, err := reader.ReadMessage()
		var frameErr *protocol.FrameError
		if errors.As(err, &frameErr) {
			log.Warn("dropping bad frame", zap.Error(err))
			h := frameErr.Header
			if h.Request && h.TwoWay && !h.Event {
				enc := svr.encoder.WithSerialization(h.Serialization)
				svr.writeResponse(conn, writeMu, enc, &message.Response{
					ID:        h.ID,
					Status:    message.StatusBadRequest,
					Exception: frameErr.Err.Error(),
				})
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !svr.shutdown.Load() {
				log.Debug("connection closed", zap.Error(err))
			}
			return
		}

		if msg.Kind != message.KindRequest {
			log.Warn("unexpected response frame", zap.Uint64("id", msg.ID()))
			continue
		}
		req := msg.Request
		enc := svr.encoder.WithSerialization(codec.CodecType(msg.Serialization))

		// Heartbeats are answered inline and never reach the handler chain.
		if req.Event {
			if !req.OneWay {
				svr.writeResponse(conn, writeMu, enc, &message.Response{ID: req.ID, Status: message.StatusOK, Event: true})
			}
			continue
		}

		if !svr.beginRequest() {
			if !req.OneWay {
				svr.writeResponse(conn, writeMu, enc, &message.Response{
					ID:        req.ID,
					Status:    message.StatusServerError,
					Exception: "rpc: server is shutting down",
				})
			}
			continue
		}
		go svr.handleRequest(req, enc, conn, writeMu)
	}
}

// handleRequest runs one request through the middleware chain and writes the reply.
func (svr *Server) handleRequest(req *message.Request, enc *protocol.Encoder, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()

	res := svr.handler(context.Background(), req)
	if req.OneWay {
		return
	}
	res.ID = req.ID // Same id as the request; the client routes on it
	svr.writeResponse(conn, writeMu, enc, res)
}

// writeResponse encodes res and writes it under the connection's write lock.
// A response that cannot be encoded is replaced by a ServerError response, so
// the caller always hears back.
func (svr *Server) writeResponse(conn net.Conn, writeMu *sync.Mutex, enc *protocol.Encoder, res *message.Response) {
	frame, err := enc.AppendResponse(nil, res)
	if err != nil {
		svr.logger.Error("failed to encode response", zap.Uint64("id", res.ID), zap.Error(err))
		failure := &message.Response{ID: res.ID, Status: message.StatusServerError, Exception: err.Error()}
		if frame, err = enc.AppendResponse(nil, failure); err != nil {
			frame, err = svr.encoder.AppendResponse(nil, failure)
		}
		if err != nil {
			svr.logger.Error("failed to encode error response", zap.Uint64("id", res.ID), zap.Error(err))
			return
		}
	}

	writeMu.Lock()
	_, err = conn.Write(frame)
	writeMu.Unlock()
	if err != nil {
		svr.logger.Debug("failed to write response", zap.Uint64("id", res.ID), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister all services (clients stop routing to this server)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight requests to finish (with timeout)
//  5. Close the remaining connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.RLock()
	reg, addr, listener := svr.registry, svr.advertiseAddr, svr.listener
	names := make([]string, 0, len(svr.serviceMap))
	for name := range svr.serviceMap {
		names = append(names, name)
	}
	svr.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs error
	if reg != nil {
		for _, name := range names {
			errs = multierr.Append(errs, reg.Deregister(ctx, name, addr))
		}
	}

	// Set the flag before closing, or Serve would see a real Accept error.
	// Under mu, so no beginRequest can Add to wg once Wait may have started.
	svr.mu.Lock()
	svr.shutdown.Store(true)
	svr.mu.Unlock()
	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("timeout waiting for ongoing requests to finish"))
	}

	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.mu.Unlock()
	return errs
}

func (svr *Server) lookup(serviceName, methodName string) (*service, *methodType, bool) {
	svr.mu.RLock()
	svc, ok := svr.serviceMap[serviceName]
	svr.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	mtype, ok := svc.method[methodName]
	return svc, mtype, ok
}

// businessHandler dispatches a request to a registered service.
// It is wrapped by the middleware chain and has the HandlerFunc signature.
//
// Flow: find service (Interface) → find method → reflect.New(args) →
// bind Params[0] → reflect.Call → reply to generic value → Response
func (svr *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	svc, mtype, ok := svr.lookup(req.Interface, req.Method)
	if !ok {
		return &message.Response{
			ID:        req.ID,
			Status:    message.StatusServiceNotFound,
			Exception: fmt.Sprintf("rpc: can't find %s.%s", req.Interface, req.Method),
		}
	}

	argv := reflect.New(mtype.ArgType)
	replyv := reflect.New(mtype.ReplyType)

	var arg any
	if len(req.Params) > 0 {
		arg = req.Params[0]
	}
	if err := message.Bind(arg, argv.Interface()); err != nil {
		return &message.Response{ID: req.ID, Status: message.StatusBadRequest, Exception: err.Error()}
	}

	if err := svc.call(ctx, mtype, argv, replyv); err != nil {
		return &message.Response{ID: req.ID, Status: message.StatusServiceError, Exception: err.Error()}
	}

	value, err := message.Generic(replyv.Interface())
	if err != nil {
		return &message.Response{ID: req.ID, Status: message.StatusServerError, Exception: err.Error()}
	}
	return &message.Response{ID: req.ID, Status: message.StatusOK, Value: value}
}

// Package client is the caller side of dubbo-rpc: it resolves a service through
// the registry, picks an instance with a load balancer and sends the call over
// a pooled, multiplexed transport.
package client

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dubbo-rpc/codec"
	"dubbo-rpc/loadbalance"
	"dubbo-rpc/message"
	"dubbo-rpc/registry"
	"dubbo-rpc/transport"
)

type Client struct {
	registry   registry.Registry
	balancer   loadbalance.Balancer
	transports map[string]chan *transport.ClientTransport // transport pool for each service instance
	codecType  codec.CodecType
	mu         sync.Mutex
	poolSize   int

	dialTimeout   time.Duration
	transportOpts []transport.Option
	logger        *zap.Logger
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Client) {
		c.transportOpts = append(c.transportOpts, opts...)
	}
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType codec.CodecType, poolSize int, opts ...Option) *Client {
	if poolSize <= 0 {
		poolSize = 1
	}
	c := &Client{
		registry:    reg,
		balancer:    bal,
		transports:  make(map[string]chan *transport.ClientTransport),
		codecType:   codecType,
		poolSize:    poolSize,
		dialTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) dial(addr string) (*transport.ClientTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return nil, err
	}
	opts := append([]transport.Option{transport.WithLogger(c.logger)}, c.transportOpts...)
	return transport.NewClientTransport(conn, c.codecType, opts...), nil
}

func (c *Client) getTransport(ctx context.Context, addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	pool, ok := c.transports[addr]
	if !ok {
		pool = make(chan *transport.ClientTransport, c.poolSize)
		c.transports[addr] = pool
	}
	c.mu.Unlock()

	if !ok {
		// Create initial transports and fill the pool
		for i := 0; i < c.poolSize; i++ {
			t, err := c.dial(addr)
			if err != nil {
				c.mu.Lock()
				delete(c.transports, addr)
				c.mu.Unlock()
				return nil, err
			}
			pool <- t
		}
	}

	select {
	case t := <-pool:
		if t.Closed() {
			// Replace a broken connection rather than handing it out.
			c.logger.Debug("redialing broken transport", zap.String("addr", addr))
			fresh, err := c.dial(addr)
			if err != nil {
				pool <- t
				return nil, err
			}
			return fresh, nil
		}
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) putTransport(addr string, t *transport.ClientTransport) {
	c.mu.Lock()
	pool := c.transports[addr]
	c.mu.Unlock()
	if pool == nil {
		t.Close()
		return
	}
	select {
	case pool <- t:
	default:
		// The pool was rebuilt after Close and is already full.
		t.Close()
	}
}

// Call invokes "Service.Method" with args and decodes the result into reply.
func (c *Client) Call(ctx context.Context, serviceMethod string, args any, reply any) error {
	serviceName, methodName, ok := strings.Cut(serviceMethod, ".")
	if !ok || serviceName == "" || methodName == "" || strings.Contains(methodName, ".") {
		return fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}

	param, err := message.Generic(args)
	if err != nil {
		return err
	}
	req := &message.Request{
		Interface: serviceName,
		Method:    methodName,
		Params:    []any{param},
	}
	if args != nil {
		req.ParamTypes = []string{reflect.TypeOf(args).String()}
	}

	instances, err := c.registry.Discover(ctx, serviceName)
	if err != nil {
		return err
	}
	instance, err := c.balancer.Pick(instances, req)
	if err != nil {
		return err
	}

	t, err := c.getTransport(ctx, instance.Addr)
	if err != nil {
		return err
	}
	defer c.putTransport(instance.Addr, t)

	res, err := t.Call(ctx, req)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	if err := res.Err(); err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return message.Bind(res.Value, reply)
}

// Close closes every idle pooled transport. Transports checked out by an
// in-flight Call are closed when they are returned.
func (c *Client) Close() error {
	c.mu.Lock()
	pools := c.transports
	c.transports = make(map[string]chan *transport.ClientTransport)
	c.mu.Unlock()

	var errs error
	for _, pool := range pools {
	drain:
		for {
			select {
			case t := <-pool:
				if !t.Closed() {
					errs = multierr.Append(errs, t.Close())
				}
			default:
				break drain
			}
		}
	}
	return errs
}

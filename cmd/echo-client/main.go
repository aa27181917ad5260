// Command echo-client calls the Echo service, discovering servers through etcd
// or dialing a fixed address.
//
//	echo-client -config cmd/echo-server/echo.toml -text hi -n 10
//	echo-client -addr 127.0.0.1:20880 -text hi
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"dubbo-rpc/client"
	"dubbo-rpc/codec"
	"dubbo-rpc/config"
	"dubbo-rpc/loadbalance"
	"dubbo-rpc/registry"
	"dubbo-rpc/transport"
)

type EchoArgs struct {
	Text string
}

type EchoReply struct {
	Text string
}

func newClient(cfg config.Config, reg registry.Registry, logger *zap.Logger) (*client.Client, error) {
	c, err := codec.ByName(cfg.Client.Serialization)
	if err != nil {
		return nil, err
	}
	bal := loadbalance.New(cfg.Client.Balancer)
	if bal == nil {
		return nil, fmt.Errorf("unknown balancer %q", cfg.Client.Balancer)
	}
	opts := []transport.Option{transport.WithMaxBodyLen(cfg.Limits.MaxBodyLen)}
	if cfg.Client.Heartbeat > 0 {
		opts = append(opts, transport.WithHeartbeat(cfg.Client.Heartbeat))
	}
	return client.NewClient(reg, bal, c.Type(), cfg.Client.PoolSize,
		client.WithLogger(logger),
		client.WithDialTimeout(cfg.Client.DialTimeout),
		client.WithTransportOptions(opts...),
	), nil
}

func run(cfg config.Config, addr, method, text string, n int, logger *zap.Logger) error {
	var reg registry.Registry
	switch {
	case addr != "":
		mem := registry.NewMemoryRegistry()
		if err := mem.Register(context.Background(), "Echo", registry.ServiceInstance{Addr: addr, Weight: 1}, 0); err != nil {
			return err
		}
		reg = mem
	case len(cfg.Registry.Endpoints) > 0:
		etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout, logger)
		if err != nil {
			return fmt.Errorf("connect registry: %w", err)
		}
		defer etcdReg.Close()
		reg = etcdReg
	default:
		return fmt.Errorf("need -addr or registry endpoints")
	}

	cli, err := newClient(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	for i := 0; i < n; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.CallTimeout)
		reply := &EchoReply{}
		err := cli.Call(ctx, "Echo."+method, &EchoArgs{Text: text}, reply)
		cancel()
		if err != nil {
			return err
		}
		fmt.Println(reply.Text)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml config file")
	addr := flag.String("addr", "", "server address; skips the registry")
	method := flag.String("method", "Say", "Echo method to call")
	text := flag.String("text", "hello", "text to echo")
	n := flag.Int("n", 1, "number of calls")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "echo-client: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "echo-client: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *addr, *method, *text, *n, logger); err != nil {
		logger.Error("call failed", zap.Error(err))
		os.Exit(1)
	}
}

// Command echo-server serves an Echo service over the dubbo-rpc frame protocol.
//
//	echo-server -config cmd/echo-server/echo.toml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"dubbo-rpc/codec"
	"dubbo-rpc/config"
	"dubbo-rpc/middleware"
	"dubbo-rpc/registry"
	"dubbo-rpc/server"
)

type EchoArgs struct {
	Text string
}

type EchoReply struct {
	Text string
}

type Echo struct{}

func (e *Echo) Say(args *EchoArgs, reply *EchoReply) error {
	reply.Text = args.Text
	return nil
}

func (e *Echo) Upper(args *EchoArgs, reply *EchoReply) error {
	reply.Text = strings.ToUpper(args.Text)
	return nil
}

func newServer(cfg config.Config, logger *zap.Logger) (*server.Server, error) {
	c, err := codec.ByName(cfg.Server.Serialization)
	if err != nil {
		return nil, err
	}
	svr := server.NewServer(
		server.WithLogger(logger),
		server.WithSerialization(c.Type()),
		server.WithMaxBodyLen(cfg.Limits.MaxBodyLen),
		server.WithRegistryTTL(cfg.Server.RegistryTTL),
	)
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.Burst))
	}
	if cfg.Server.RequestTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Server.RequestTimeout))
	}
	if err := svr.Register(&Echo{}); err != nil {
		return nil, err
	}
	return svr, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	svr, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	var reg registry.Registry
	if len(cfg.Registry.Endpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout, logger)
		if err != nil {
			return fmt.Errorf("connect registry: %w", err)
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	errc := make(chan error, 1)
	go func() {
		errc <- svr.Serve(cfg.Server.Network, cfg.Server.Address, cfg.Server.Advertise, reg)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		if err := svr.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			return err
		}
		return <-errc
	}
}

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "echo-server: %v\n", err)
			os.Exit(1)
		}
	}

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "echo-server: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("echo-server stopped", zap.Error(err))
		os.Exit(1)
	}
}

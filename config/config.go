// Package config loads server and client settings from a TOML or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"dubbo-rpc/codec"
	"dubbo-rpc/loadbalance"
	"dubbo-rpc/protocol"
)

type Config struct {
	Server   ServerConfig
	Client   ClientConfig
	Registry RegistryConfig
	Limits   LimitsConfig
}

type ServerConfig struct {
	Network         string
	Address         string
	Advertise       string // address published to the registry; defaults to Address
	Serialization   string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	RegistryTTL     int64 // seconds
	RateLimit       float64
	Burst           int
}

type ClientConfig struct {
	Serialization string
	PoolSize      int
	Balancer      string
	Heartbeat     time.Duration
	CallTimeout   time.Duration
	DialTimeout   time.Duration
}

type RegistryConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
}

type LimitsConfig struct {
	MaxBodyLen uint32
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Network:         "tcp",
			Address:         ":20880",
			Serialization:   "hessian2",
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  3 * time.Second,
			RegistryTTL:     10,
		},
		Client: ClientConfig{
			Serialization: "hessian2",
			PoolSize:      4,
			Balancer:      "roundrobin",
			Heartbeat:     30 * time.Second,
			CallTimeout:   3 * time.Second,
			DialTimeout:   5 * time.Second,
		},
		Registry: RegistryConfig{
			DialTimeout: 5 * time.Second,
		},
		Limits: LimitsConfig{
			MaxBodyLen: protocol.DefaultMaxBodyLen,
		},
	}
}

// fileConfig mirrors Config with durations spelled as strings ("5s", "250ms").
type fileConfig struct {
	Server struct {
		Network         string  `toml:"network" yaml:"network"`
		Address         string  `toml:"address" yaml:"address"`
		Advertise       string  `toml:"advertise" yaml:"advertise"`
		Serialization   string  `toml:"serialization" yaml:"serialization"`
		ShutdownTimeout string  `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
		RequestTimeout  string  `toml:"request_timeout" yaml:"request_timeout"`
		RegistryTTL     int64   `toml:"registry_ttl" yaml:"registry_ttl"`
		RateLimit       float64 `toml:"rate_limit" yaml:"rate_limit"`
		Burst           int     `toml:"burst" yaml:"burst"`
	} `toml:"server" yaml:"server"`
	Client struct {
		Serialization string `toml:"serialization" yaml:"serialization"`
		PoolSize      int    `toml:"pool_size" yaml:"pool_size"`
		Balancer      string `toml:"balancer" yaml:"balancer"`
		Heartbeat     string `toml:"heartbeat" yaml:"heartbeat"`
		CallTimeout   string `toml:"call_timeout" yaml:"call_timeout"`
		DialTimeout   string `toml:"dial_timeout" yaml:"dial_timeout"`
	} `toml:"client" yaml:"client"`
	Registry struct {
		Endpoints   []string `toml:"endpoints" yaml:"endpoints"`
		DialTimeout string   `toml:"dial_timeout" yaml:"dial_timeout"`
	} `toml:"registry" yaml:"registry"`
	Limits struct {
		MaxBodyLen uint32 `toml:"max_body_len" yaml:"max_body_len"`
	} `toml:"limits" yaml:"limits"`
}

func toFile(cfg Config) fileConfig {
	var raw fileConfig
	raw.Server.Network = cfg.Server.Network
	raw.Server.Address = cfg.Server.Address
	raw.Server.Advertise = cfg.Server.Advertise
	raw.Server.Serialization = cfg.Server.Serialization
	raw.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout.String()
	raw.Server.RequestTimeout = cfg.Server.RequestTimeout.String()
	raw.Server.RegistryTTL = cfg.Server.RegistryTTL
	raw.Server.RateLimit = cfg.Server.RateLimit
	raw.Server.Burst = cfg.Server.Burst
	raw.Client.Serialization = cfg.Client.Serialization
	raw.Client.PoolSize = cfg.Client.PoolSize
	raw.Client.Balancer = cfg.Client.Balancer
	raw.Client.Heartbeat = cfg.Client.Heartbeat.String()
	raw.Client.CallTimeout = cfg.Client.CallTimeout.String()
	raw.Client.DialTimeout = cfg.Client.DialTimeout.String()
	raw.Registry.Endpoints = cfg.Registry.Endpoints
	raw.Registry.DialTimeout = cfg.Registry.DialTimeout.String()
	raw.Limits.MaxBodyLen = cfg.Limits.MaxBodyLen
	return raw
}

func (raw fileConfig) toConfig() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Network:       strings.TrimSpace(raw.Server.Network),
			Address:       strings.TrimSpace(raw.Server.Address),
			Advertise:     strings.TrimSpace(raw.Server.Advertise),
			Serialization: strings.TrimSpace(raw.Server.Serialization),
			RegistryTTL:   raw.Server.RegistryTTL,
			RateLimit:     raw.Server.RateLimit,
			Burst:         raw.Server.Burst,
		},
		Client: ClientConfig{
			Serialization: strings.TrimSpace(raw.Client.Serialization),
			PoolSize:      raw.Client.PoolSize,
			Balancer:      strings.TrimSpace(raw.Client.Balancer),
		},
		Registry: RegistryConfig{
			Endpoints: normalizeEndpoints(raw.Registry.Endpoints),
		},
		Limits: LimitsConfig{
			MaxBodyLen: raw.Limits.MaxBodyLen,
		},
	}

	durations := []struct {
		key string
		in  string
		out *time.Duration
	}{
		{"server.shutdown_timeout", raw.Server.ShutdownTimeout, &cfg.Server.ShutdownTimeout},
		{"server.request_timeout", raw.Server.RequestTimeout, &cfg.Server.RequestTimeout},
		{"client.heartbeat", raw.Client.Heartbeat, &cfg.Client.Heartbeat},
		{"client.call_timeout", raw.Client.CallTimeout, &cfg.Client.CallTimeout},
		{"client.dial_timeout", raw.Client.DialTimeout, &cfg.Client.DialTimeout},
		{"registry.dial_timeout", raw.Registry.DialTimeout, &cfg.Registry.DialTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(strings.TrimSpace(d.in))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.out = v
	}
	return cfg, nil
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are rejected. The format is picked by extension:
// .toml, or .yaml/.yml.
func Load(path string) (Config, error) {
	raw := toFile(Default())

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.UnmarshalStrict(data, &raw); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("config load failed (%s): unsupported format %q", path, ext)
	}

	cfg, err := raw.toConfig()
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.Server.Advertise == "" {
		cfg.Server.Advertise = cfg.Server.Address
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Server.Network == "" {
		return fmt.Errorf("server network is required")
	}
	if cfg.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if _, err := codec.ByName(cfg.Server.Serialization); err != nil {
		return fmt.Errorf("server serialization: %w", err)
	}
	if _, err := codec.ByName(cfg.Client.Serialization); err != nil {
		return fmt.Errorf("client serialization: %w", err)
	}
	if cfg.Server.RateLimit < 0 || cfg.Server.Burst < 0 {
		return fmt.Errorf("server rate limit must not be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.Burst == 0 {
		return fmt.Errorf("server burst is required when rate_limit is set")
	}
	if cfg.Server.RegistryTTL <= 0 {
		return fmt.Errorf("server registry_ttl must be positive")
	}
	if cfg.Client.PoolSize <= 0 {
		return fmt.Errorf("client pool_size must be positive")
	}
	if loadbalance.New(cfg.Client.Balancer) == nil {
		return fmt.Errorf("client balancer %q is unknown", cfg.Client.Balancer)
	}
	if cfg.Limits.MaxBodyLen == 0 {
		return fmt.Errorf("limits max_body_len must be positive")
	}
	return nil
}

func normalizeEndpoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ep := range in {
		v := strings.TrimSpace(ep)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

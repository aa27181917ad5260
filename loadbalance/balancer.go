// Package loadbalance provides load balancing strategies for distributing
// RPC requests across multiple service instances.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless services, equal-capacity instances
//   - WeightedRandom:  Heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  Stateful services requiring cache affinity
package loadbalance

import (
	"errors"

	"dubbo-rpc/message"
	"dubbo-rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each RPC to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list for req.
	// Called on every RPC call, so it must be goroutine-safe.
	Pick(instances []registry.ServiceInstance, req *message.Request) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name, or nil.
func New(name string) Balancer {
	switch name {
	case "RoundRobin", "roundrobin", "":
		return &RoundRobinBalancer{}
	case "WeightedRandom", "weightedrandom", "random":
		return &WeightedRandomBalancer{}
	case "ConsistentHash", "consistenthash":
		return NewConsistentHashBalancer()
	}
	return nil
}

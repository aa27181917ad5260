package loadbalance

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"stathat.com/c/consistent"

	"dubbo-rpc/message"
	"dubbo-rpc/registry"
)

// DefaultReplicas is the number of virtual nodes per instance on the ring.
const DefaultReplicas = 100

// ConsistentHashBalancer maps a request to an instance on a hash ring keyed by
// the request's first argument, so calls about the same entity land on the
// same instance (until the ring changes). Useful for stateful services or
// local caches.
//
// Virtual nodes keep the load even: each instance owns DefaultReplicas points
// on the ring.
type ConsistentHashBalancer struct {
	mu      sync.Mutex
	ring    *consistent.Consistent
	members string // sorted, joined addresses the ring was built from
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	ring := consistent.New()
	ring.NumberOfReplicas = DefaultReplicas
	return &ConsistentHashBalancer{ring: ring}
}

func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance, req *message.Request) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	byAddr := make(map[string]*registry.ServiceInstance, len(instances))
	addrs := make([]string, 0, len(instances))
	for i := range instances {
		byAddr[instances[i].Addr] = &instances[i]
		addrs = append(addrs, instances[i].Addr)
	}
	sort.Strings(addrs)

	b.mu.Lock()
	if members := strings.Join(addrs, ","); members != b.members {
		b.ring.Set(addrs)
		b.members = members
	}
	addr, err := b.ring.Get(hashKey(req))
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("loadbalance: %w", err)
	}
	return byAddr[addr], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func hashKey(req *message.Request) string {
	if req == nil {
		return ""
	}
	if len(req.Params) > 0 {
		return fmt.Sprint(req.Params[0])
	}
	return req.Interface + "." + req.Method
}

package registry

import (
	"context"
	"sync"
)

// MemoryRegistry keeps instances in process. It serves direct-connect setups
// without etcd and tests. TTLs are ignored.
type MemoryRegistry struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

func (m *MemoryRegistry) Register(ctx context.Context, serviceName string, inst ServiceInstance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[serviceName]
	for i := range insts {
		if insts[i].Addr == inst.Addr {
			insts[i] = inst
			m.notify(serviceName)
			return nil
		}
	}
	m.instances[serviceName] = append(insts, inst)
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i:i], insts[i+1:]...)
			m.notify(serviceName)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ServiceInstance(nil), m.instances[serviceName]...), nil
}

func (m *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	m.mu.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[serviceName]
		for i, w := range ws {
			if w == ch {
				m.watchers[serviceName] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notify sends the current list to watchers, replacing any unread update.
// Callers hold m.mu.
func (m *MemoryRegistry) notify(serviceName string) {
	snapshot := append([]ServiceInstance(nil), m.instances[serviceName]...)
	for _, ch := range m.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// EtcdRegistry stores instances in etcd v3 as a "distributed phonebook":
//
//	Key:   /dubbo-rpc/{ServiceName}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the server crashes, the lease expires
// and the entry is removed automatically, so clients never see ghost instances.
package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/dubbo-rpc/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease, so Deregister can revoke it
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client: c,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func serviceKey(serviceName, addr string) string {
	return keyPrefix + serviceName + "/" + addr
}

func servicePrefix(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

// Register adds a service instance with a TTL lease and keeps the lease alive
// in the background until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := serviceKey(serviceName, instance.Addr)
	if _, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// KeepAlive must outlive the caller's ctx; it stops when the lease is revoked.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keep-alive stopped", zap.String("key", key))
	}()
	return nil
}

// Deregister removes a service instance. Called during graceful shutdown
// before closing the listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	key := serviceKey(serviceName, addr)
	r.mu.Lock()
	leaseID, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		// Revoking deletes the key and ends KeepAlive in one step.
		_, err := r.client.Revoke(ctx, leaseID)
		return err
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Watch emits the full instance list whenever anything under the service
// prefix changes. The channel closes when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list rather than applying individual events.
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				r.logger.Warn("watch refresh failed", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a service.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close releases the etcd client; leases still held expire after their TTL.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

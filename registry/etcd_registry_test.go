package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// etcdEndpoints returns the endpoints from ETCD_ENDPOINTS or skips the test.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	v := os.Getenv("ETCD_ENDPOINTS")
	if v == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	return strings.Split(v, ",")
}

func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 3*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}
	require.NoError(t, reg.Register(ctx, "Arith", inst1, 10))
	require.NoError(t, reg.Register(ctx, "Arith", inst2, 10))

	instances, err := reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	require.Len(t, instances, 2)

	require.NoError(t, reg.Deregister(ctx, "Arith", inst1.Addr))

	instances, err = reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, inst2.Addr, instances[0].Addr)

	require.NoError(t, reg.Deregister(ctx, "Arith", inst2.Addr))
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 3*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updates := reg.Watch(ctx, "Watched")
	require.NoError(t, reg.Register(ctx, "Watched", ServiceInstance{Addr: "127.0.0.1:8003"}, 10))

	select {
	case instances := <-updates:
		require.Len(t, instances, 1)
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
	require.NoError(t, reg.Deregister(ctx, "Watched", "127.0.0.1:8003"))
}

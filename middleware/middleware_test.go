package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"dubbo-rpc/message"
)

// 模拟一个简单的 handler：直接返回成功响应
func echoHandler(ctx context.Context, req *message.Request) *message.Response {
	return &message.Response{ID: req.ID, Status: message.StatusOK, Value: "ok"}
}

// 模拟一个慢 handler：睡 200ms
func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func newRequest() *message.Request {
	return &message.Request{ID: 1, Interface: "Arith", Method: "Add"}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := LoggingMiddleware(zap.New(core))(echoHandler)

	res := handler(context.Background(), newRequest())
	require.NotNil(t, res)
	assert.Equal(t, "ok", res.Value)

	entries := logs.FilterMessage("rpc call").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Add", entries[0].ContextMap()["method"])
}

func TestLoggingFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	failing := func(ctx context.Context, req *message.Request) *message.Response {
		return errorResponse(req, message.StatusServiceError, "boom")
	}
	LoggingMiddleware(zap.New(core))(failing)(context.Background(), newRequest())

	entries := logs.FilterMessage("rpc call failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["exception"])
}

func TestTimeoutPass(t *testing.T) {
	// 超时 500ms，handler 很快，应该正常返回
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)
	res := handler(context.Background(), newRequest())
	assert.Equal(t, message.StatusOK, res.Status)
	assert.Empty(t, res.Exception)
}

func TestTimeoutExceeded(t *testing.T) {
	// 超时 50ms，handler 需要 200ms，应该超时
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)
	res := handler(context.Background(), newRequest())
	assert.Equal(t, message.StatusServerTimeout, res.Status)
	assert.Equal(t, "request timed out", res.Exception)
	assert.Equal(t, uint64(1), res.ID)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		res := handler(context.Background(), newRequest())
		require.Equal(t, message.StatusOK, res.Status, "request %d", i)
	}

	res := handler(context.Background(), newRequest())
	assert.Equal(t, message.StatusServerThreadpoolExhausted, res.Status)
	assert.Equal(t, "rate limit exceeded", res.Exception)
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req *message.Request) *message.Response {
		if calls.Add(1) < 3 {
			return errorResponse(req, message.StatusServerTimeout, "request timed out")
		}
		return echoHandler(ctx, req)
	}
	res := RetryMiddleware(zap.NewNop(), 3, time.Millisecond)(flaky)(context.Background(), newRequest())
	assert.Equal(t, message.StatusOK, res.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	broken := func(ctx context.Context, req *message.Request) *message.Response {
		calls.Add(1)
		return errorResponse(req, message.StatusServiceNotFound, "no such service")
	}
	res := RetryMiddleware(zap.NewNop(), 3, time.Millisecond)(broken)(context.Background(), newRequest())
	assert.Equal(t, message.StatusServiceNotFound, res.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChain(t *testing.T) {
	// 用 Chain 组合 Logging + Timeout，验证请求能正常穿过
	chained := Chain(LoggingMiddleware(zap.NewNop()), TimeOutMiddleware(500*time.Millisecond))
	res := chained(echoHandler)(context.Background(), newRequest())
	require.NotNil(t, res)
	assert.Equal(t, message.StatusOK, res.Status)

	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	Chain(mark("a"), mark("b"), mark("c"))(echoHandler)(context.Background(), newRequest())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

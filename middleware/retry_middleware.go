package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dubbo-rpc/message"
)

// retryable statuses are transient: the same request may succeed later.
func retryable(s message.Status) bool {
	return s == message.StatusServerTimeout || s == message.StatusServerThreadpoolExhausted
}

func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			res := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if res.Status == message.StatusOK || !retryable(res.Status) {
					return res
				}
				logger.Debug("retrying rpc call",
					zap.Int("attempt", i+1),
					zap.String("interface", req.Interface),
					zap.String("method", req.Method),
					zap.Stringer("status", res.Status))
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)): // Exponential backoff
				case <-ctx.Done():
					return res
				}
				res = next(ctx, req)
			}
			return res
		}
	}
}

package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dubbo-rpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			res := next(ctx, req)
			fields := []zap.Field{
				zap.String("interface", req.Interface),
				zap.String("method", req.Method),
				zap.Uint64("id", req.ID),
				zap.Duration("duration", time.Since(start)),
				zap.Stringer("status", res.Status),
			}
			if res.Exception != "" {
				logger.Warn("rpc call failed", append(fields, zap.String("exception", res.Exception))...)
				return res
			}
			logger.Info("rpc call", fields...)
			return res
		}
	}
}

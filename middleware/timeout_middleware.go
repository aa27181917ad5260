package middleware

import (
	"context"
	"time"

	"dubbo-rpc/message"
)

func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case res := <-done:
				return res
			case <-ctx.Done():
				return errorResponse(req, message.StatusServerTimeout, "request timed out")
			}
		}
	}
}

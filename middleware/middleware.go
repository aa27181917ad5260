// Package middleware wraps the server's business handler with cross-cutting
// behavior: logging, timeouts, rate limiting and retries.
package middleware

import (
	"context"

	"dubbo-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func errorResponse(req *message.Request, status message.Status, exception string) *message.Response {
	return &message.Response{ID: req.ID, Status: status, Exception: exception}
}

package natsx

import (
	"context"
	"fmt"
)

// Message 统一消息对象
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Handler 业务处理函数
type Handler func(ctx context.Context, msg Message) error

// Middleware 中间件（幂等、恢复等）
type Middleware func(Handler) Handler

// Chain 组合中间件，mws[0] 在最外层
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover turns a panicking handler into an error.
func Recover() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panic on %s: %v", msg.Subject, r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

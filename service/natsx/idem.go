package natsx

import (
	"context"
	"time"

	"LinkHub/logger"

	"go.uber.org/zap"
)

// HeaderMsgID carries the sidecar's per-event id.
const HeaderMsgID = "Nats-Msg-Id"

// Seen is the dedup store behind IdemMiddleware.
type Seen interface {
	SeenOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ----- 从消息头提取 msgID -----
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{HeaderMsgID, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// IdemMiddleware drops events whose msg id was already handled within ttl.
// Events without an id always pass; a store error lets the event through.
func IdemMiddleware(store Seen, ttl time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				return next(ctx, msg)
			}
			seen, err := store.SeenOnce(ctx, "natsx|"+msg.Subject+"|"+id, ttl)
			if err != nil {
				logger.Warn("[Natsx] idem store error", zap.String("subject", msg.Subject), zap.Error(err))
			}
			if seen {
				logger.Debug("[Natsx] redelivered event dropped", zap.String("subject", msg.Subject), zap.String("msgId", id))
				return nil
			}
			return next(ctx, msg)
		}
	}
}

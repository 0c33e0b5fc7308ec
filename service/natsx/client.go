// Package natsx talks to the provider sidecar over NATS. The sidecar owns the
// real chat account connections; the worker drives them by request/reply and
// receives their callbacks on a per-session event subject.
package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"LinkHub/global/config"
	"LinkHub/logger"
	"LinkHub/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config 客户端配置
type Config struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration // 请求默认超时（ctx 无 deadline 时）
}

func ConfigFrom(c config.NatsConfig) Config {
	return Config{Servers: c.Servers, Name: c.Name, Timeout: c.Timeout}
}

// Transport is what the provider bridge needs from a NATS connection.
type Transport interface {
	Request(ctx context.Context, subject string, data []byte, hdr map[string]string) (Message, error)
	Subscribe(subject string, h Handler) (unsubscribe func() error, err error)
}

// Client 统一客户端
type Client struct {
	cfg Config
	nc  *nats.Conn

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

var _ Transport = (*Client)(nil)

// Connect 连接 NATS
func Connect(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("[Natsx] disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[Natsx] reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.ErrProvider.WrapMsg("nats connect", "servers", cfg.Servers, "err", err)
	}
	return &Client{cfg: cfg, nc: nc, subs: make(map[*nats.Subscription]struct{})}, nil
}

// Request sends one request and waits for its reply. A ctx without deadline
// gets the configured timeout.
func (c *Client) Request(ctx context.Context, subject string, data []byte, hdr map[string]string) (Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	reply, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	return fromNats(reply), nil
}

// Subscribe 订阅 core subject；回调在该订阅自己的 goroutine 里串行执行，保序
func (c *Client) Subscribe(subject string, h Handler) (func() error, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		if err := h(context.Background(), fromNats(m)); err != nil {
			logger.Warn("[Natsx] handler error", zap.String("subject", m.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return nil, errs.ErrProvider.WrapMsg("nats subscribe", "subject", subject, "err", err)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	return func() error {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		return sub.Unsubscribe()
	}, nil
}

// Close 优雅关闭
func (c *Client) Close() error {
	c.mu.Lock()
	for sub := range c.subs {
		_ = sub.Drain()
		delete(c.subs, sub)
	}
	c.mu.Unlock()
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}

func fromNats(m *nats.Msg) Message {
	return Message{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

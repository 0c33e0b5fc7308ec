package chat

import (
	"context"
	"sync"

	"LinkHub/module/model"
	"LinkHub/module/relay"
	"LinkHub/service/fanout"
	"LinkHub/tools/security"
)

// Handler serves one inbound websocket event.
type Handler interface {
	Event() string
	Handle(*ChatContext, *fanout.Frame, *WsConn) error
}

type ChatContext struct {
	S   *Server
	Ctx context.Context
}

// Sessions is the lifecycle surface the websocket events drive.
type Sessions interface {
	StartSession(id string, caller model.Emitter) error
	ForceSync(id string) error
	Logout(id string) error
}

// Messages is the relay surface the websocket events drive.
type Messages interface {
	Send(ctx context.Context, req relay.SendRequest) (string, error)
	MarkRead(ctx context.Context, sessionID, chatID string) error
}

// WsConn is one viewer connection. Session is the last session it joined;
// chat-read applies to it.
type WsConn struct {
	Sub    *fanout.Subscriber
	Claims *security.ViewerClaims // nil when auth is off

	mu      sync.Mutex
	session string
}

func (c *WsConn) SetSession(id string) {
	c.mu.Lock()
	c.session = id
	c.mu.Unlock()
}

func (c *WsConn) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Allows reports whether the viewer may act on sessionID.
func (c *WsConn) Allows(sessionID string) bool {
	return c.Claims == nil || c.Claims.AllowsSession(sessionID)
}

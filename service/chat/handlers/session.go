package handlers

import (
	"errors"

	"LinkHub/logger"
	"LinkHub/module/model"
	"LinkHub/service/chat"
	"LinkHub/service/fanout"
	"LinkHub/tools/decode"
	"LinkHub/tools/errs"

	"go.uber.org/zap"
)

const sessionKey = "sessionId"

// sessionArg reads the session id of join-session / force-sync / logout and
// checks the viewer may use it.
func sessionArg(f *fanout.Frame, conn *chat.WsConn) (string, error) {
	id, err := decode.String(f.Data, sessionKey)
	if err != nil || id == "" {
		return "", errs.ErrArgs.WrapMsg("sessionId required", "event", f.Event)
	}
	if !conn.Allows(id) {
		return "", errs.ErrTokenInvalid.WrapMsg("session not granted", "session", id)
	}
	return id, nil
}

// JoinHandler subscribes the viewer to a session's room and starts the
// session if needed.
type JoinHandler struct{}

func NewJoinHandler() chat.Handler   { return &JoinHandler{} }
func (h *JoinHandler) Event() string { return model.EventJoinSession }

func (h *JoinHandler) Handle(c *chat.ChatContext, f *fanout.Frame, conn *chat.WsConn) error {
	id, err := sessionArg(f, conn)
	if err != nil {
		return err
	}
	// 先进房间，后面的 qr/ready 广播才能收到
	c.S.Hub().Join(id, conn.Sub)
	conn.SetSession(id)
	logger.Info("[WS] join session", zap.String("sub", conn.Sub.ID), zap.String("session", id))
	return c.S.Sessions().StartSession(id, conn.Sub)
}

type ForceSyncHandler struct{}

func NewForceSyncHandler() chat.Handler   { return &ForceSyncHandler{} }
func (h *ForceSyncHandler) Event() string { return model.EventForceSync }

func (h *ForceSyncHandler) Handle(c *chat.ChatContext, f *fanout.Frame, conn *chat.WsConn) error {
	id, err := sessionArg(f, conn)
	if err != nil {
		return err
	}
	err = c.S.Sessions().ForceSync(id)
	if errors.Is(err, errs.ErrSessionNotReady) {
		conn.Sub.Emit(model.EventStatus, model.TextSyncNotReady)
	}
	return err
}

type LogoutHandler struct{}

func NewLogoutHandler() chat.Handler   { return &LogoutHandler{} }
func (h *LogoutHandler) Event() string { return model.EventLogout }

func (h *LogoutHandler) Handle(c *chat.ChatContext, f *fanout.Frame, conn *chat.WsConn) error {
	id, err := sessionArg(f, conn)
	if err != nil {
		return err
	}
	logger.Info("[WS] logout requested", zap.String("session", id))
	return c.S.Sessions().Logout(id)
}

package handlers

import (
	"context"
	"encoding/base64"
	"time"

	"LinkHub/logger"
	"LinkHub/module/model"
	"LinkHub/module/relay"
	"LinkHub/module/remote"
	"LinkHub/service/chat"
	"LinkHub/service/fanout"
	"LinkHub/tools/decode"
	"LinkHub/tools/errs"
	"LinkHub/tools/safe"

	"go.uber.org/zap"
)

const sendTimeout = 60 * time.Second

type mediaPayload struct {
	MimeType string `json:"mimetype"`
	Data     string `json:"data"` // base64
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type sendPayload struct {
	SessionID string        `json:"sessionId"`
	To        string        `json:"to"`
	Message   string        `json:"message"`
	Media     *mediaPayload `json:"media"`
	QuotedID  string        `json:"quotedMessageId"`
}

func (p *sendPayload) request() (relay.SendRequest, error) {
	req := relay.SendRequest{SessionID: p.SessionID, To: p.To, Text: p.Message, QuotedID: p.QuotedID}
	if p.Media != nil {
		m := &remote.Media{MimeType: p.Media.MimeType, Filename: p.Media.Filename, URL: p.Media.URL}
		if p.Media.Data != "" {
			data, err := base64.StdEncoding.DecodeString(p.Media.Data)
			if err != nil {
				return req, errs.ErrArgs.WrapMsg("media data is not base64", "err", err)
			}
			m.Data = data
		}
		req.Media = m
	}
	return req, nil
}

// SendHandler sends a message in the background so a slow upload does not
// hold up the viewer's other events. Failures come back as a status event.
type SendHandler struct{}

func NewSendHandler() chat.Handler   { return &SendHandler{} }
func (h *SendHandler) Event() string { return model.EventSendMessage }

func (h *SendHandler) Handle(c *chat.ChatContext, f *fanout.Frame, conn *chat.WsConn) error {
	p, err := decode.DecodeJSON[sendPayload](f.Data)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad send-message payload", "err", err)
	}
	if p.SessionID == "" || p.To == "" || (p.Message == "" && p.Media == nil) {
		return errs.ErrArgs.WrapMsg("sessionId, to and message or media are required")
	}
	if !conn.Allows(p.SessionID) {
		return errs.ErrTokenInvalid.WrapMsg("session not granted", "session", p.SessionID)
	}
	req, err := p.request()
	if err != nil {
		conn.Sub.Emit(model.EventStatus, model.TextSendFailed)
		return err
	}

	messages := c.S.Messages()
	safe.SafeGo("send-message", func() {
		// 连接断开不取消已经发出的发送
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Ctx), sendTimeout)
		defer cancel()
		id, err := messages.Send(ctx, req)
		if err != nil {
			logger.Warn("[WS] send failed", zap.String("session", req.SessionID), zap.String("to", req.To), zap.Error(err))
			conn.Sub.Emit(model.EventStatus, model.TextSendFailed)
			return
		}
		logger.Info("[WS] message sent", zap.String("session", req.SessionID), zap.String("to", req.To), zap.String("msg", id))
	})
	return nil
}

// ReadHandler marks a chat of the viewer's current session as read.
type ReadHandler struct{}

func NewReadHandler() chat.Handler   { return &ReadHandler{} }
func (h *ReadHandler) Event() string { return model.EventChatRead }

func (h *ReadHandler) Handle(c *chat.ChatContext, f *fanout.Frame, conn *chat.WsConn) error {
	chatID, err := decode.String(f.Data, "chatId")
	if err != nil || chatID == "" {
		return errs.ErrArgs.WrapMsg("chatId required")
	}
	sessionID := conn.Session()
	if sessionID == "" {
		return errs.ErrSessionNotFound.WrapMsg("chat-read before join-session", "chat", chatID)
	}
	return c.S.Messages().MarkRead(c.Ctx, sessionID, chatID)
}

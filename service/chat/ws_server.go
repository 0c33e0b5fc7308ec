package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"LinkHub/logger"
	midsec "LinkHub/middleware/security"
	"LinkHub/service/fanout"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxFrameBytes = 32 << 20 // send-message 可能带 base64 媒体
	pongWait      = 60 * time.Second
)

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := s.opts.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			for _, o := range allowed {
				if strings.TrimRight(o, "/") == origin {
					return true
				}
			}
			return false
		},
	}
}

// HandleWS ===== WebSocket 处理 =====
// The read loop only reads and dispatches; all writes go through the
// subscriber's WritePump.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Info("[HandleWS] upgrade websocket error", zap.Error(err))
		return
	}

	sub := fanout.NewSubscriber(ws, s.opts.SendQueue)
	conn := &WsConn{Sub: sub, Claims: midsec.Claims(c)}
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		sub.WritePump()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.LeaveAll(sub)
		sub.Close()
		<-pumpDone // 等写协程真正关闭 ws
		logger.Info("[WS] closed", zap.String("sub", sub.ID), zap.String("session", conn.Session()))
	}()

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	logger.Info("[WS] connected", zap.String("sub", sub.ID), zap.String("remote", c.Request.RemoteAddr))

	// ---- 读循环：只读，不写；出错即退出（写协程收尾） ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived):
				logger.Info("[WS] peer closed", zap.String("sub", sub.ID))
			case errors.As(rerr, &ne) && ne.Timeout():
				logger.Info("[WS] read timeout", zap.String("sub", sub.ID))
			default:
				logger.Info("[WS] read err", zap.String("sub", sub.ID), zap.Error(rerr))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := fanout.ParseFrame(data)
		if perr != nil {
			// 只打印简短样本
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Info("[WS] parse frame err", zap.String("sub", sub.ID), zap.Error(perr),
				zap.ByteString("sample", sample), zap.Int("len", len(data)))
			continue
		}

		if err := s.disp.Dispatch(&ChatContext{S: s, Ctx: ctx}, frame, conn); err != nil {
			logger.Info("[WS] handler error", zap.String("sub", sub.ID), zap.String("event", frame.Event), zap.Error(err))
		}
	}
}

package fanout

import (
	"sync"
	"time"

	"LinkHub/logger"
	"LinkHub/service/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval   = 25 * time.Second
	writeWait      = 10 * time.Second
	firstPingDelay = 5 * time.Second
)

// Subscriber is one viewer connection. Frames are queued on send and written by
// a single WritePump goroutine; a full queue drops the frame instead of blocking.
type Subscriber struct {
	ID   string
	conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSubscriber(conn *websocket.Conn, queue int) *Subscriber {
	if queue <= 0 {
		queue = 256
	}
	return &Subscriber{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// Emit sends an event to this subscriber only.
func (s *Subscriber) Emit(event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		logger.Warn("[WS] encode emit", zap.String("sub", s.ID), zap.Error(err))
		return
	}
	s.enqueue(frame)
}

func (s *Subscriber) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	case <-s.done:
		return false
	default:
		metrics.FanoutDropped.WithLabelValues("subscriber").Inc()
		logger.Debug("[WS] send queue full, drop frame", zap.String("sub", s.ID))
		return false
	}
}

// Frames exposes the queue; used when no websocket is attached.
func (s *Subscriber) Frames() <-chan []byte { return s.send }

// Done is closed once the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// WritePump owns all writes to the connection: queued frames, then pings.
// It closes the websocket when it returns.
func (s *Subscriber) WritePump() {
	ticker := time.NewTicker(pingInterval)
	first := time.NewTimer(firstPingDelay)
	defer func() {
		ticker.Stop()
		first.Stop()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Info("[WS] write frame err", zap.String("sub", s.ID), zap.Error(err))
				return
			}
		case <-first.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Info("[WS] first ping err", zap.String("sub", s.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Info("[WS] ping err", zap.String("sub", s.ID), zap.Error(err))
				return
			}
		}
	}
}

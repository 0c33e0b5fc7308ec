// Package chat is the worker's viewer surface: the websocket event endpoint
// and the read-only query API.
package chat

import (
	"net/http"
	"strings"

	"LinkHub/logger"
	"LinkHub/middleware"
	midsec "LinkHub/middleware/security"
	"LinkHub/service/fanout"
	"LinkHub/service/metrics"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaSource serves objects kept by the in-process object store.
type MediaSource interface {
	Get(key string) (storage.Object, bool)
}

type Options struct {
	SendQueue      int
	Auth           *midsec.Options // nil disables viewer tokens
	AllowedOrigins []string
	Media          MediaSource // nil when media lives in S3
}

type Server struct {
	hub      *fanout.Hub
	sessions Sessions
	messages Messages
	store    storage.Store
	disp     *Dispatcher
	opts     Options
}

func NewServer(hub *fanout.Hub, sessions Sessions, messages Messages, store storage.Store, opts Options) *Server {
	return &Server{
		hub:      hub,
		sessions: sessions,
		messages: messages,
		store:    store,
		disp:     NewDispatcher(),
		opts:     opts,
	}
}

func (s *Server) Hub() *fanout.Hub   { return s.hub }
func (s *Server) Sessions() Sessions { return s.sessions }
func (s *Server) Messages() Messages { return s.messages }
func (s *Server) Disp() *Dispatcher  { return s.disp }
func (s *Server) Register(hs ...Handler) {
	for _, h := range hs {
		s.disp.Register(h)
	}
}

// Engine builds the worker's gin routes.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Origin(s.opts.AllowedOrigins))

	opt := middleware.RouteOpt{Auth: s.opts.Auth}
	middleware.GET(r, "/ws", s.HandleWS, opt)
	api := r.Group("/api")
	middleware.GET(api, "/chats/:sessionId", s.listChats, opt)
	middleware.GET(api, "/messages/:chatId", s.listMessages, opt)

	if s.opts.Media != nil {
		r.GET("/media/*key", s.media)
	}
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

func (s *Server) listChats(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if claims := midsec.Claims(c); claims != nil && !claims.AllowsSession(sessionID) {
		c.JSON(http.StatusForbidden, errs.ErrTokenInvalid.WithDetail("session not granted"))
		return
	}
	chats, err := s.store.ListChats(c.Request.Context(), sessionID)
	if err != nil {
		logger.Error("[API] list chats failed", zap.String("session", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (s *Server) listMessages(c *gin.Context) {
	chatID := c.Param("chatId")
	if claims := midsec.Claims(c); claims != nil {
		owner, err := s.store.ChatSession(c.Request.Context(), chatID)
		if err != nil {
			logger.Error("[API] chat owner lookup failed", zap.String("chat", chatID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// 未知 chat 只对不限 session 的 token 开放
		if !claims.AllowsSession(owner) {
			c.JSON(http.StatusForbidden, errs.ErrTokenInvalid.WithDetail("session not granted"))
			return
		}
	}
	msgs, err := s.store.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		logger.Error("[API] list messages failed", zap.String("chat", chatID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) media(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	obj, ok := s.opts.Media.Get(key)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}

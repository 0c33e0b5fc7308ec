// Package relay moves single messages between a ready session, the store and
// the session's viewers.
package relay

import (
	"context"
	"strconv"
	"strings"
	"time"

	"LinkHub/global/config"
	"LinkHub/logger"
	"LinkHub/module/model"
	"LinkHub/module/remote"
	"LinkHub/service/metrics"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"
	"LinkHub/tools/ids"
	"LinkHub/tools/safe"

	"go.uber.org/zap"
)

// Sessions looks up the client of a READY session.
type Sessions interface {
	ReadyClient(sessionID string) (remote.Client, bool)
}

type Config struct {
	DedupWindow   time.Duration
	SendTimeout   time.Duration
	MediaTimeout  time.Duration
	LookupTimeout time.Duration
}

func ConfigFrom(c config.RelayConfig) Config {
	return Config{DedupWindow: c.DedupWindow}
}

func (c Config) norm() Config {
	if c.DedupWindow <= 0 {
		c.DedupWindow = 3 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MediaTimeout <= 0 {
		c.MediaTimeout = 30 * time.Second
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 5 * time.Second
	}
	return c
}

type Relay struct {
	sessions Sessions
	store    storage.Store
	objects  storage.ObjectStore
	out      model.Broadcaster
	idem     IdemStore
	conf     Config
}

func New(sessions Sessions, store storage.Store, objects storage.ObjectStore, out model.Broadcaster, idem IdemStore, conf Config) *Relay {
	return &Relay{
		sessions: sessions,
		store:    store,
		objects:  objects,
		out:      out,
		idem:     idem,
		conf:     conf.norm(),
	}
}

// SendRequest is an outbound message. At least one of Text and Media is set.
type SendRequest struct {
	SessionID string
	To        string
	Text      string
	Media     *remote.Media
	QuotedID  string
}

// Send delivers req through the session's client and records it. It returns the
// provider message id. Nothing is retried: a failed send is reported once.
func (r *Relay) Send(ctx context.Context, req SendRequest) (string, error) {
	if req.SessionID == "" || req.To == "" {
		return "", errs.ErrArgs.WrapMsg("sessionId and to are required")
	}
	if req.Text == "" && req.Media == nil {
		return "", errs.ErrArgs.WrapMsg("message or media is required")
	}
	client, ok := r.sessions.ReadyClient(req.SessionID)
	if !ok {
		return "", errs.ErrSessionNotReady.WrapMsg("send", "session", req.SessionID)
	}
	log := logger.With(zap.String("session", req.SessionID), zap.String("to", req.To))

	var (
		mediaURL  string
		mediaType model.MediaType
		filename  string
	)
	if m := req.Media; m != nil {
		mediaType = model.MediaTypeFromMime(m.MimeType)
		filename = m.Filename
		mediaURL = m.URL
		if mediaURL == "" && len(m.Data) > 0 {
			key := "outgoing_" + strconv.FormatInt(ids.Generate(), 10) + "." + model.ExtFromMime(m.MimeType)
			url, err := r.objects.Upload(ctx, key, m.MimeType, m.Data)
			if err != nil {
				log.Error("[Relay] outgoing media upload failed", zap.String("key", key), zap.Error(err))
				return "", errs.ErrUpload.WrapMsg("outgoing media", "key", key, "err", err)
			}
			mediaURL = url
		}
	}

	providerID, err := safe.Await(ctx, r.conf.SendTimeout, "send message", func(ctx context.Context) (string, error) {
		return client.Send(ctx, remote.SendRequest{To: req.To, Text: req.Text, Media: req.Media, QuotedID: req.QuotedID})
	})
	if err != nil {
		log.Error("[Relay] send failed", zap.Error(err))
		return "", errs.ErrSendFailed.WrapMsg("send", "session", req.SessionID, "to", req.To, "err", err)
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()

	caption := req.Text
	if mediaType != "" {
		caption = model.Caption(mediaType, req.Text, filename)
	}
	ts := model.NowMillis()

	// 持久化失败只记日志，消息已经发出
	if err := r.store.TouchChat(ctx, model.Chat{
		ID:          req.To,
		SessionID:   req.SessionID,
		ContactName: req.To,
		LastMessage: model.Preview(caption, mediaType, ""),
		Timestamp:   ts,
	}); err != nil {
		log.Error("[Relay] touch chat failed", zap.Error(err))
	}
	msg := model.Message{
		ProviderID: providerID,
		ChatID:     req.To,
		Body:       caption,
		FromMe:     true,
		SenderName: model.SenderMe,
		Timestamp:  ts,
		MediaURL:   mediaURL,
		MediaType:  mediaType,
		Ack:        model.AckPending,
	}
	if mediaType != "" {
		msg.Caption = caption
	}
	if _, err := r.store.InsertMessages(ctx, []model.Message{msg}); err != nil {
		log.Error("[Relay] insert sent message failed", zap.String("msg", providerID), zap.Error(err))
	}
	log.Info("[Relay] sent", zap.String("msg", providerID), zap.String("media", string(mediaType)))
	return providerID, nil
}

// dedupKey identifies a content event for the suppression window: same chat,
// same origin, same body. Media without text also keys on the message id so
// two different photos are never folded together.
func dedupKey(chatID string, msg remote.MessageInfo) string {
	var b strings.Builder
	b.WriteString(chatID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(msg.FromMe))
	b.WriteByte('|')
	b.WriteString(msg.Body)
	if msg.HasMedia && msg.Body == "" {
		b.WriteByte('|')
		b.WriteString(msg.ID)
	}
	return b.String()
}

// HandleMessage records a content event of the session and broadcasts it.
// Every event is stored; the suppression window only holds back the
// broadcast. chat may be nil when the provider did not attach it.
func (r *Relay) HandleMessage(ctx context.Context, sessionID string, client remote.Client, msg remote.MessageInfo, chat *remote.ChatInfo) {
	info := remote.ChatInfo{ID: msg.ChatID}
	if chat != nil {
		info = *chat
	}
	if info.ID == "" {
		logger.Warn("[Relay] message without chat id dropped", zap.String("session", sessionID), zap.String("msg", msg.ID))
		return
	}
	log := logger.With(zap.String("session", sessionID), zap.String("chat", info.ID), zap.String("msg", msg.ID))

	metrics.RelayMessages.WithLabelValues("in").Inc()

	contactName := remote.DisplayName(ctx, client, info, r.conf.LookupTimeout)
	// 查不到名字时用完整 chat id，TouchChat 会保留已存的名字
	if info.Name == "" && contactName == model.UserPart(info.ID) {
		contactName = info.ID
	}

	var (
		mediaURL  string
		mediaType model.MediaType
		caption   = msg.Body
	)
	if msg.HasMedia {
		mediaURL, mediaType, caption = r.inboundMedia(ctx, client, msg, log)
	}

	var participantID string
	senderName := contactName
	switch {
	case msg.FromMe:
		senderName = model.SenderMe
	case info.IsGroup:
		participantID = msg.Author
		senderName = remote.SenderName(ctx, client, participantID, r.conf.LookupTimeout)
	}

	ts := msg.Timestamp * 1000
	if ts <= 0 {
		ts = model.NowMillis()
	}
	body := caption
	if body == "" {
		body = msg.Body
	}

	if err := r.store.TouchChat(ctx, model.Chat{
		ID:          info.ID,
		SessionID:   sessionID,
		ContactName: contactName,
		LastMessage: model.Preview(caption, mediaType, msg.Body),
		Timestamp:   ts,
	}); err != nil {
		log.Error("[Relay] touch chat failed", zap.Error(err))
	}
	row := model.Message{
		ProviderID:    msg.ID,
		ChatID:        info.ID,
		Body:          body,
		FromMe:        msg.FromMe,
		SenderName:    senderName,
		ParticipantID: participantID,
		Timestamp:     ts,
		MediaURL:      mediaURL,
		MediaType:     mediaType,
		Caption:       caption,
		Ack:           model.AckLevel(max(msg.Ack, 0)),
	}
	if _, err := r.store.InsertMessages(ctx, []model.Message{row}); err != nil {
		log.Error("[Relay] insert message failed", zap.Error(err))
	}

	// 落库按 provider id 幂等；窗口只拦截重复推送给 viewer
	seen, err := r.idem.SeenOnce(ctx, dedupKey(info.ID, msg), r.conf.DedupWindow)
	if err != nil {
		log.Warn("[Relay] dedup check failed, accepting event", zap.Error(err))
	}
	if seen {
		metrics.RelayMessages.WithLabelValues("duplicate").Inc()
		log.Debug("[Relay] duplicate event not broadcast")
		return
	}

	r.out.Broadcast(sessionID, model.EventNewMessage, model.NewMessage{
		From:          info.ID,
		Body:          body,
		Name:          contactName,
		SenderName:    senderName,
		ParticipantID: model.StrPtr(participantID),
		MediaURL:      model.StrPtr(mediaURL),
		MediaType:     mediaType,
		FromMe:        msg.FromMe,
		Caption:       caption,
		MessageID:     msg.ID,
	})
}

// inboundMedia downloads and re-hosts an attachment. Any failure degrades to
// a message without media URL.
func (r *Relay) inboundMedia(ctx context.Context, client remote.Client, msg remote.MessageInfo, log *zap.Logger) (string, model.MediaType, string) {
	caption := msg.Body
	media, err := safe.Await(ctx, r.conf.MediaTimeout, "media download", func(ctx context.Context) (*remote.Media, error) {
		return client.DownloadMedia(ctx, msg.ID)
	})
	if err != nil || media == nil {
		log.Warn("[Relay] media download failed", zap.Error(err))
		return "", model.MediaTypeFromKind(msg.Kind), caption
	}

	mediaType := model.MediaTypeFromMime(media.MimeType)
	caption = model.Caption(mediaType, msg.Body, media.Filename)

	name := msg.ShortID
	if name == "" {
		name = strconv.FormatInt(ids.Generate(), 10)
	}
	key := name + "." + model.ExtFromMime(media.MimeType)
	url := media.URL
	if len(media.Data) > 0 {
		url, err = r.objects.Upload(ctx, key, media.MimeType, media.Data)
		if err != nil {
			log.Error("[Relay] media upload failed", zap.String("key", key), zap.Error(err))
			url = ""
		}
	}
	return url, mediaType, caption
}

// HandleAck applies a delivery state change and broadcasts it. The stored
// level only moves up; the broadcast always goes out so viewers see the
// provider's order.
func (r *Relay) HandleAck(ctx context.Context, sessionID string, ack remote.AckInfo) {
	level := model.AckLevel(ack.Ack)
	if err := r.store.UpdateAck(ctx, ack.MessageID, level); err != nil {
		logger.Error("[Relay] update ack failed", zap.String("session", sessionID),
			zap.String("msg", ack.MessageID), zap.Error(err))
	}
	r.out.Broadcast(sessionID, model.EventMessageAck, model.MessageAck{
		MsgID:  ack.MessageID,
		Ack:    level,
		ChatID: ack.ChatID,
	})
}

// MarkRead marks a chat seen on the provider and clears its unread counter.
func (r *Relay) MarkRead(ctx context.Context, sessionID, chatID string) error {
	if chatID == "" {
		return errs.ErrArgs.WrapMsg("chatId is required")
	}
	client, ok := r.sessions.ReadyClient(sessionID)
	if !ok {
		return errs.ErrSessionNotReady.WrapMsg("chat read", "session", sessionID)
	}
	if _, err := safe.Await(ctx, r.conf.LookupTimeout, "mark seen", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, client.MarkSeen(ctx, chatID)
	}); err != nil {
		return errs.ErrProvider.WrapMsg("mark seen", "chat", chatID, "err", err)
	}
	if err := r.store.MarkChatRead(ctx, chatID); err != nil {
		return errs.ErrStorage.WrapMsg("mark chat read", "chat", chatID, "err", err)
	}
	return nil
}

// Package chatsync pulls a session's chat list and recent history into the store
// after the session becomes ready.
package chatsync

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"LinkHub/global/config"
	"LinkHub/logger"
	"LinkHub/module/model"
	"LinkHub/module/remote"
	"LinkHub/service/metrics"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"
	"LinkHub/tools/safe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BatchSize      int
	HistoryChats   int // top-K chats whose recent messages are pulled
	MessageLimit   int
	AvatarTimeout  time.Duration
	HistoryTimeout time.Duration
}

func ConfigFrom(c config.SyncConfig) Config {
	return Config{
		BatchSize:      c.BatchSize,
		HistoryChats:   c.HistoryChats,
		MessageLimit:   c.MessageLimit,
		AvatarTimeout:  c.AvatarTimeout,
		HistoryTimeout: c.HistoryTimeout,
	}
}

func (c Config) norm() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.HistoryChats < 0 {
		c.HistoryChats = 0
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = 20
	}
	return c
}

// Pipeline runs the two phase sync. Runs for different sessions are independent;
// the caller keeps at most one run per session in flight.
type Pipeline struct {
	store storage.Store
	out   model.Broadcaster
	conf  Config
}

func New(store storage.Store, out model.Broadcaster, conf Config) *Pipeline {
	return &Pipeline{store: store, out: out, conf: conf.norm()}
}

// Run syncs the chat list (phase 1) then the recent messages of the top chats
// (phase 2). ctx is checked between batches; a cancelled run stops without
// writing the batch in flight and returns ctx.Err().
func (p *Pipeline) Run(ctx context.Context, sessionID string, client remote.Client) error {
	start := time.Now()
	log := logger.With(zap.String("session", sessionID))

	chats, err := client.Chats(ctx)
	if err != nil {
		log.Error("[Sync] fetch chat list failed", zap.Error(err))
		p.out.Broadcast(sessionID, model.EventStatus, model.TextSyncFailed)
		metrics.SyncRuns.WithLabelValues("error").Inc()
		return errs.ErrProvider.WrapMsg("fetch chat list", "session", sessionID, "err", err)
	}
	sort.SliceStable(chats, func(i, j int) bool { return chats[i].Timestamp > chats[j].Timestamp })
	log.Info("[Sync] starting", zap.Int("chats", len(chats)))

	names, err := p.syncChats(ctx, sessionID, client, chats)
	if err != nil {
		metrics.SyncRuns.WithLabelValues("cancelled").Inc()
		return err
	}
	p.out.Broadcast(sessionID, model.EventChatsSynced, nil)

	top := chats[:min(p.conf.HistoryChats, len(chats))]
	if err := p.syncHistory(ctx, sessionID, client, top, names); err != nil {
		metrics.SyncRuns.WithLabelValues("cancelled").Inc()
		return err
	}
	p.out.Broadcast(sessionID, model.EventSyncComplete, nil)

	metrics.SyncRuns.WithLabelValues("ok").Inc()
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	log.Info("[Sync] complete", zap.Duration("took", time.Since(start)))
	return nil
}

// syncChats is phase 1. It returns display names by chat id for phase 2.
func (p *Pipeline) syncChats(ctx context.Context, sessionID string, client remote.Client, chats []remote.ChatInfo) (map[string]string, error) {
	total := len(chats)
	names := make(map[string]string, total)
	var detailErrs atomic.Int64
	if total == 0 {
		p.out.Broadcast(sessionID, model.EventSyncProgress, progress(0, 0, 0))
		return names, nil
	}

	for from := 0; from < total; from += p.conf.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		to := min(from+p.conf.BatchSize, total)
		batch := chats[from:to]
		rows := make([]model.Chat, len(batch))

		var g errgroup.Group
		for i := range batch {
			i := i
			g.Go(func() error {
				rows[i] = p.chatRow(ctx, sessionID, client, batch[i], &detailErrs)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := p.store.UpsertChats(ctx, rows); err != nil {
			logger.Error("[Sync] upsert chats failed", zap.String("session", sessionID), zap.Error(err))
		}
		for _, r := range rows {
			names[r.ID] = r.ContactName
		}
		p.out.Broadcast(sessionID, model.EventSyncProgress, progress(to, total, 0))
	}

	logger.Info("[Sync] chats synced", zap.String("session", sessionID), zap.Int("chats", total),
		zap.Int64("detail_errors", detailErrs.Load()))
	return names, nil
}

func (p *Pipeline) chatRow(ctx context.Context, sessionID string, client remote.Client, chat remote.ChatInfo, detailErrs *atomic.Int64) model.Chat {
	name := remote.DisplayName(ctx, client, chat, p.conf.AvatarTimeout)

	pic, err := safe.Await(ctx, p.conf.AvatarTimeout, "profile pic fetch", func(ctx context.Context) (string, error) {
		return client.ProfilePicURL(ctx, chat.ID)
	})
	if err != nil {
		detailErrs.Add(1)
		logger.Debug("[Sync] profile pic unavailable", zap.String("chat", chat.ID), zap.Error(err))
		pic = ""
	}

	ts := chat.Timestamp * 1000
	if ts <= 0 {
		ts = model.NowMillis()
	}
	return model.Chat{
		ID:            chat.ID,
		SessionID:     sessionID,
		ContactName:   name,
		LastMessage:   chat.LastMessage,
		Timestamp:     ts,
		ProfilePicURL: pic,
		UnreadCount:   max(chat.UnreadCount, 0),
	}
}

// syncHistory is phase 2. A chat whose fetch fails or times out is skipped.
func (p *Pipeline) syncHistory(ctx context.Context, sessionID string, client remote.Client, top []remote.ChatInfo, names map[string]string) error {
	total := len(top)
	if total == 0 {
		p.out.Broadcast(sessionID, model.EventSyncProgress, progress(0, 0, 50))
		return nil
	}
	for from := 0; from < total; from += p.conf.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := min(from+p.conf.BatchSize, total)
		batch := top[from:to]
		perChat := make([][]model.Message, len(batch))

		var g errgroup.Group
		for i := range batch {
			i := i
			g.Go(func() error {
				perChat[i] = p.chatHistory(ctx, sessionID, client, batch[i], names[batch[i].ID])
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}

		var msgs []model.Message
		for _, m := range perChat {
			msgs = append(msgs, m...)
		}
		if len(msgs) > 0 {
			if _, err := p.store.InsertMessages(ctx, msgs); err != nil {
				logger.Error("[Sync] insert messages failed", zap.String("session", sessionID), zap.Error(err))
			}
		}
		p.out.Broadcast(sessionID, model.EventSyncProgress, progress(to, total, 50))
	}
	return nil
}

func (p *Pipeline) chatHistory(ctx context.Context, sessionID string, client remote.Client, chat remote.ChatInfo, chatName string) []model.Message {
	history, err := safe.Await(ctx, p.conf.HistoryTimeout, "message fetch", func(ctx context.Context) ([]remote.MessageInfo, error) {
		return client.FetchMessages(ctx, chat.ID, p.conf.MessageLimit)
	})
	if err != nil {
		logger.Warn("[Sync] could not fetch messages", zap.String("session", sessionID),
			zap.String("chat", chat.ID), zap.Error(err))
		return nil
	}
	if chatName == "" {
		chatName = model.UserPart(chat.ID)
	}

	out := make([]model.Message, 0, len(history))
	for _, m := range history {
		row := model.Message{
			ProviderID: m.ID,
			ChatID:     chat.ID,
			Body:       m.Body,
			FromMe:     m.FromMe,
			SenderName: chatName,
			Timestamp:  m.Timestamp * 1000,
			MediaType:  model.MediaTypeFromKind(m.Kind),
			Ack:        model.AckLevel(m.Ack),
		}
		switch {
		case m.FromMe:
			row.SenderName = model.SenderMe
		case chat.IsGroup:
			row.ParticipantID = m.Author
			row.SenderName = remote.SenderName(ctx, client, m.Author, p.conf.AvatarTimeout)
		}
		if row.MediaType != "" {
			row.Caption = model.Caption(row.MediaType, m.Body, "")
		}
		out = append(out, row)
	}
	return out
}

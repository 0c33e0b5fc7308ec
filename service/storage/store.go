package storage

import (
	"context"

	"LinkHub/module/model"
)

// Store is the durable record of sessions, chats and messages.
//
// Chats are keyed by chat id and messages by provider message id. Every write
// is an upsert, so replaying a sync or redelivering an event never produces
// duplicate rows.
type Store interface {
	UpsertSession(ctx context.Context, s model.Session) error

	// UpsertChats writes a batch from a sync run. An empty ProfilePicURL keeps the stored one.
	UpsertChats(ctx context.Context, chats []model.Chat) error
	// TouchChat bumps preview and activity time after a live message. The stored
	// contact name is kept when the given one is only the raw chat id.
	TouchChat(ctx context.Context, chat model.Chat) error
	// InsertMessages inserts new messages and ignores ones whose provider id already exists.
	// It returns how many rows were actually inserted.
	InsertMessages(ctx context.Context, msgs []model.Message) (int, error)
	// UpdateAck raises the stored ack level; lower or equal levels are ignored.
	UpdateAck(ctx context.Context, providerID string, ack model.AckLevel) error
	MarkChatRead(ctx context.Context, chatID string) error

	// ListChats returns a session's chats, most recent activity first.
	ListChats(ctx context.Context, sessionID string) ([]model.Chat, error)
	// ListMessages returns a chat's messages in time order.
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	// ChatSession returns the session that owns a chat, "" when the chat is unknown.
	ChatSession(ctx context.Context, chatID string) (string, error)

	Close() error
}

// ObjectStore hosts media bytes and hands back a public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (publicURL string, err error)
}

// Package remote is the contract between the worker and a linked chat account.
// The provider's wire protocol and auth flow live behind Client.
package remote

import (
	"context"
)

// ChatInfo is a conversation as listed by the provider. Timestamp is unix seconds.
type ChatInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	Timestamp   int64  `json:"timestamp"`
	UnreadCount int    `json:"unreadCount"`
	LastMessage string `json:"lastMessage"`
}

type Contact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pushname string `json:"pushname"`
}

// MessageInfo is a message as seen by the provider. Timestamp is unix seconds.
type MessageInfo struct {
	ID        string `json:"id"`
	ShortID   string `json:"shortId"`
	ChatID    string `json:"chatId"`
	Body      string `json:"body"`
	FromMe    bool   `json:"fromMe"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"type"`
	Ack       int    `json:"ack"`
	HasMedia  bool   `json:"hasMedia"`
}

// Media is an attachment. Data holds raw bytes; URL is set when it is already hosted.
type Media struct {
	MimeType string `json:"mimetype"`
	Data     []byte `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

type SendRequest struct {
	To       string `json:"to"`
	Text     string `json:"text,omitempty"`
	Media    *Media `json:"media,omitempty"`
	QuotedID string `json:"quotedMessageId,omitempty"`
}

// AckInfo reports a delivery state change of a message.
type AckInfo struct {
	MessageID string `json:"msgId"`
	ChatID    string `json:"chatId"`
	Ack       int    `json:"ack"`
}

// Client is one linked account connection. Every call may be slow or fail;
// callers bound them with deadlines. Events is closed once the client is closed.
type Client interface {
	Initialize(ctx context.Context) error
	Events() <-chan Event

	Chats(ctx context.Context) ([]ChatInfo, error)
	Contact(ctx context.Context, id string) (Contact, error)
	ProfilePicURL(ctx context.Context, chatID string) (string, error)
	FetchMessages(ctx context.Context, chatID string, limit int) ([]MessageInfo, error)
	DownloadMedia(ctx context.Context, messageID string) (*Media, error)

	Send(ctx context.Context, req SendRequest) (providerID string, err error)
	MarkSeen(ctx context.Context, chatID string) error

	Logout(ctx context.Context) error
	Close() error
}

// Factory builds the client for a session id. It must not block on the network;
// connecting happens in Initialize.
type Factory func(sessionID string) (Client, error)

package model

import "time"

// SessionStatus is the persisted status of a linked account session.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusReady        SessionStatus = "ready"
	StatusDisconnected SessionStatus = "disconnected"
)

type Session struct {
	ID        string        `json:"id" bson:"_id"`
	Status    SessionStatus `json:"status" bson:"status"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at"`
}

// Chat is one conversation of a session. Timestamp is unix milliseconds of the last activity.
type Chat struct {
	ID            string `json:"id" bson:"_id"`
	SessionID     string `json:"session_id" bson:"session_id"`
	ContactName   string `json:"contact_name" bson:"contact_name"`
	LastMessage   string `json:"last_message" bson:"last_message"`
	Timestamp     int64  `json:"timestamp" bson:"timestamp"`
	ProfilePicURL string `json:"profile_pic_url,omitempty" bson:"profile_pic_url,omitempty"`
	UnreadCount   int    `json:"unread_count" bson:"unread_count"`
}

// Message is keyed by the provider's message id; the store never holds two rows with the same one.
type Message struct {
	ProviderID    string    `json:"provider_message_id" bson:"_id"`
	ChatID        string    `json:"chat_id" bson:"chat_id"`
	Body          string    `json:"body" bson:"body"`
	FromMe        bool      `json:"from_me" bson:"from_me"`
	SenderName    string    `json:"sender_name" bson:"sender_name"`
	ParticipantID string    `json:"participant_id,omitempty" bson:"participant_id,omitempty"`
	Timestamp     int64     `json:"timestamp" bson:"timestamp"`
	MediaURL      string    `json:"media_url,omitempty" bson:"media_url,omitempty"`
	MediaType     MediaType `json:"media_type,omitempty" bson:"media_type,omitempty"`
	Caption       string    `json:"caption,omitempty" bson:"caption,omitempty"`
	Ack           AckLevel  `json:"ack" bson:"ack"`
}

// MediaType classifies attachments.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// AckLevel is the delivery state of an outgoing message. Stored levels never go down.
type AckLevel int

const (
	AckError     AckLevel = -1
	AckPending   AckLevel = 0
	AckSent      AckLevel = 1
	AckDelivered AckLevel = 2
	AckRead      AckLevel = 3
	AckPlayed    AckLevel = 4
)

// Max returns the higher of two levels.
func (a AckLevel) Max(b AckLevel) AckLevel {
	if b > a {
		return b
	}
	return a
}

// NowMillis is the timestamp unit used by Chat and Message.
func NowMillis() int64 { return time.Now().UnixMilli() }

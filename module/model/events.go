package model

// Outbound event names pushed to viewers.
const (
	EventStatus       = "status"
	EventQR           = "qr"
	EventReady        = "ready"
	EventAuthFailure  = "auth-failure"
	EventSyncProgress = "sync-progress"
	EventChatsSynced  = "chats-synced"
	EventSyncComplete = "sync-complete"
	EventNewMessage   = "new-message"
	EventMessageAck   = "message-ack"
)

// Inbound event names sent by viewers.
const (
	EventJoinSession = "join-session"
	EventSendMessage = "send-message"
	EventForceSync   = "force-sync"
	EventLogout      = "logout"
	EventChatRead    = "chat-read"
)

// Status texts carried by EventStatus / EventReady.
const (
	TextConnected       = "Client is connected"
	TextRestored        = "Session restored"
	TextInitializing    = "Session is initializing..."
	TextStarting        = "Initializing client..."
	TextAwaitingQR      = "Waiting for QR scan..."
	TextActive          = "Session active"
	TextDisconnected    = "Disconnected"
	TextInitFailed      = "Error initializing session"
	TextSendFailed      = "Failed to send message"
	TextSyncNotReady    = "Session not ready for sync"
	TextSyncFailed      = "Error syncing chats"
	TextAuthFailureBase = "Authentication failed"
)

type SyncProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

type NewMessage struct {
	From          string    `json:"from"`
	Body          string    `json:"body"`
	Name          string    `json:"name"`
	SenderName    string    `json:"senderName"`
	ParticipantID *string   `json:"participantId"`
	MediaURL      *string   `json:"media_url"`
	MediaType     MediaType `json:"media_type"`
	FromMe        bool      `json:"from_me"`
	Caption       string    `json:"caption"`
	MessageID     string    `json:"msgId"`
}

type MessageAck struct {
	MsgID  string   `json:"msgId"`
	Ack    AckLevel `json:"ack"`
	ChatID string   `json:"chatId"`
}

// Broadcaster delivers an event to every viewer joined to a session.
type Broadcaster interface {
	Broadcast(sessionID, event string, payload any)
}

// Emitter delivers an event to a single viewer.
type Emitter interface {
	Emit(event string, payload any)
}

// StrPtr returns nil for "" so optional fields encode as JSON null.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

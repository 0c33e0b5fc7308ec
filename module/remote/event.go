package remote

import "fmt"

type EventKind int

const (
	EventQR EventKind = iota + 1
	EventReady
	EventAuthFailure
	EventDisconnected
	EventMessage
	EventAck
)

func (k EventKind) String() string {
	switch k {
	case EventQR:
		return "qr"
	case EventReady:
		return "ready"
	case EventAuthFailure:
		return "auth_failure"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventAck:
		return "ack"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one provider callback. Only the fields of its Kind are set:
// QR for EventQR, Reason for EventAuthFailure/EventDisconnected,
// Message and Chat for EventMessage, Ack for EventAck.
type Event struct {
	Kind    EventKind
	QR      string
	Reason  string
	Message *MessageInfo
	Chat    *ChatInfo
	Ack     *AckInfo
}

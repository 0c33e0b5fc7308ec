package natsx

import (
	"encoding/json"
	"fmt"
	"strings"

	"LinkHub/module/remote"
	"LinkHub/tools/errs"
)

// 侧车应答信封：{ok, data, error, code}
type reply struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"` // "timeout" 表示上游超时
}

const codeTimeout = "timeout"

// decodeReply unpacks the envelope into out (nil skips the payload).
func decodeReply(subject string, raw []byte, out any) error {
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return errs.ErrProvider.WrapMsg("bad reply", "subject", subject, "err", err)
	}
	if !r.OK {
		if r.Code == codeTimeout {
			return errs.ErrProviderTimeout.WrapMsg(r.Error, "subject", subject)
		}
		return errs.ErrProvider.WrapMsg(r.Error, "subject", subject)
	}
	if out == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return errs.ErrProvider.WrapMsg("bad reply data", "subject", subject, "err", err)
	}
	return nil
}

// wireEvent is one callback published by the sidecar on <prefix>.<session>.events.
type wireEvent struct {
	Type    string              `json:"type"`
	QR      string              `json:"qr,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Message *remote.MessageInfo `json:"message,omitempty"`
	Chat    *remote.ChatInfo    `json:"chat,omitempty"`
	Ack     *remote.AckInfo     `json:"ack,omitempty"`
}

var eventKinds = map[string]remote.EventKind{
	"qr":           remote.EventQR,
	"ready":        remote.EventReady,
	"auth_failure": remote.EventAuthFailure,
	"disconnected": remote.EventDisconnected,
	"message":      remote.EventMessage,
	"ack":          remote.EventAck,
}

func decodeEvent(raw []byte) (remote.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return remote.Event{}, fmt.Errorf("decode event: %w", err)
	}
	kind, ok := eventKinds[strings.ToLower(w.Type)]
	if !ok {
		return remote.Event{}, fmt.Errorf("unknown event type %q", w.Type)
	}
	ev := remote.Event{Kind: kind, QR: w.QR, Reason: w.Reason, Message: w.Message, Chat: w.Chat, Ack: w.Ack}
	switch {
	case kind == remote.EventMessage && ev.Message == nil:
		return remote.Event{}, fmt.Errorf("message event without message")
	case kind == remote.EventAck && ev.Ack == nil:
		return remote.Event{}, fmt.Errorf("ack event without ack")
	}
	return ev, nil
}

func encodeEvent(ev remote.Event) ([]byte, error) {
	return json.Marshal(wireEvent{
		Type: ev.Kind.String(), QR: ev.QR, Reason: ev.Reason,
		Message: ev.Message, Chat: ev.Chat, Ack: ev.Ack,
	})
}

// subjectToken makes a session id safe as one NATS subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"LinkHub/logger"
	"LinkHub/module/remote"
	"LinkHub/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// 侧车 subject：<prefix>.<session>.<op>
const (
	opInit     = "init"
	opChats    = "chats"
	opContact  = "contact"
	opPic      = "pic"
	opMessages = "messages"
	opMedia    = "media"
	opSend     = "send"
	opSeen     = "seen"
	opLogout   = "logout"
	opEvents   = "events"

	eventBuffer = 256
)

// Provider is a remote.Client whose account connection lives in the sidecar.
type Provider struct {
	t         Transport
	sessionID string
	base      string
	mws       []Middleware

	events    chan remote.Event
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	unsub     func() error
}

var _ remote.Client = (*Provider)(nil)

// NewFactory builds providers for the session manager. Middlewares wrap the
// per-session event handler.
func NewFactory(t Transport, prefix string, mws ...Middleware) remote.Factory {
	return func(sessionID string) (remote.Client, error) {
		if sessionID == "" {
			return nil, errs.ErrArgs.WrapMsg("sessionId is required")
		}
		return newProvider(t, prefix, sessionID, mws...), nil
	}
}

func newProvider(t Transport, prefix, sessionID string, mws ...Middleware) *Provider {
	if prefix == "" {
		prefix = "provider"
	}
	return &Provider{
		t:         t,
		sessionID: sessionID,
		base:      prefix + "." + subjectToken(sessionID) + ".",
		mws:       mws,
		events:    make(chan remote.Event, eventBuffer),
		done:      make(chan struct{}),
	}
}

func (p *Provider) subject(op string) string { return p.base + op }

// Initialize subscribes to the session's events, then asks the sidecar to
// start the account connection.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errs.ErrProvider.WrapMsg("client closed", "session", p.sessionID)
	}
	if p.unsub == nil {
		h := Chain(p.onEvent, append([]Middleware{Recover()}, p.mws...)...)
		unsub, err := p.t.Subscribe(p.subject(opEvents), h)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.unsub = unsub
	}
	p.mu.Unlock()
	return p.call(ctx, opInit, map[string]string{"sessionId": p.sessionID}, nil)
}

func (p *Provider) onEvent(_ context.Context, msg Message) error {
	ev, err := decodeEvent(msg.Data)
	if err != nil {
		logger.Warn("[Natsx] bad event", zap.String("session", p.sessionID), zap.Error(err))
		return nil
	}
	p.push(ev)
	return nil
}

// push blocks while the buffer is full; Close unblocks it.
func (p *Provider) push(ev remote.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Provider) Events() <-chan remote.Event { return p.events }

func (p *Provider) Chats(ctx context.Context) ([]remote.ChatInfo, error) {
	var out []remote.ChatInfo
	err := p.call(ctx, opChats, nil, &out)
	return out, err
}

func (p *Provider) Contact(ctx context.Context, id string) (remote.Contact, error) {
	var out remote.Contact
	err := p.call(ctx, opContact, map[string]string{"id": id}, &out)
	return out, err
}

func (p *Provider) ProfilePicURL(ctx context.Context, chatID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := p.call(ctx, opPic, map[string]string{"chatId": chatID}, &out)
	return out.URL, err
}

func (p *Provider) FetchMessages(ctx context.Context, chatID string, limit int) ([]remote.MessageInfo, error) {
	var out []remote.MessageInfo
	err := p.call(ctx, opMessages, map[string]any{"chatId": chatID, "limit": limit}, &out)
	return out, err
}

func (p *Provider) DownloadMedia(ctx context.Context, messageID string) (*remote.Media, error) {
	var out *remote.Media
	if err := p.call(ctx, opMedia, map[string]string{"msgId": messageID}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errs.ErrProvider.WrapMsg("no media", "msgId", messageID)
	}
	return out, nil
}

func (p *Provider) Send(ctx context.Context, req remote.SendRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := p.call(ctx, opSend, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (p *Provider) MarkSeen(ctx context.Context, chatID string) error {
	return p.call(ctx, opSeen, map[string]string{"chatId": chatID}, nil)
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.call(ctx, opLogout, nil, nil)
}

// Close stops event delivery and closes Events. It never talks to the sidecar.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		unsub := p.unsub
		p.unsub = nil
		close(p.events)
		p.mu.Unlock()
		if unsub != nil {
			err = unsub()
		}
	})
	return err
}

func (p *Provider) call(ctx context.Context, op string, req, out any) error {
	var data []byte
	if req != nil {
		var err error
		if data, err = json.Marshal(req); err != nil {
			return errs.ErrArgs.WrapMsg("encode request", "op", op, "err", err)
		}
	}
	subject := p.subject(op)
	msg, err := p.t.Request(ctx, subject, data, nil)
	if err != nil {
		return requestErr(subject, err)
	}
	return decodeReply(subject, msg.Data, out)
}

func requestErr(subject string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return errs.ErrProviderTimeout.WrapMsg("request timed out", "subject", subject)
	case errors.Is(err, nats.ErrNoResponders):
		return errs.ErrProvider.WrapMsg("sidecar not responding", "subject", subject)
	default:
		return errs.ErrProvider.WrapMsg("request failed", "subject", subject, "err", err)
	}
}

// Sidecar helpers used by tests and local tooling.

// EventSubject is where the sidecar publishes callbacks of sessionID.
func EventSubject(prefix, sessionID string) string {
	return prefix + "." + subjectToken(sessionID) + "." + opEvents
}

// EncodeEvent renders ev in the sidecar's wire form.
func EncodeEvent(ev remote.Event) ([]byte, error) { return encodeEvent(ev) }

// ReplyOK / ReplyErr build sidecar reply envelopes.
func ReplyOK(data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(reply{OK: true, Data: raw})
	return b
}

func ReplyErr(msg string, timeout bool) []byte {
	r := reply{Error: msg}
	if timeout {
		r.Code = codeTimeout
	}
	b, _ := json.Marshal(r)
	return b
}

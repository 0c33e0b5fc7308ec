// Package remotetest provides a scriptable in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LinkHub/module/remote"
)

var ErrClosed = errors.New("fake client closed")

// Fake is a remote.Client whose answers are set through its exported fields
// before use. Delays block until the delay passes or the call's ctx ends.
type Fake struct {
	SessionID string

	InitErr   error
	ChatList  []remote.ChatInfo
	ChatsErr  error
	Contacts  map[string]remote.Contact
	Pics      map[string]string
	PicDelay  map[string]time.Duration
	History   map[string][]remote.MessageInfo
	HistDelay map[string]time.Duration
	HistErr   map[string]error
	MediaOf   map[string]*remote.Media
	SendErr   error
	LogoutErr error

	mu         sync.Mutex
	events     chan remote.Event
	closed     bool
	sent       []remote.SendRequest
	seen       []string
	histCalls  map[string]int
	initCalls  int
	logoutCall int
	closeCalls int
}

func New(sessionID string) *Fake {
	return &Fake{
		SessionID: sessionID,
		Contacts:  map[string]remote.Contact{},
		Pics:      map[string]string{},
		PicDelay:  map[string]time.Duration{},
		History:   map[string][]remote.MessageInfo{},
		HistDelay: map[string]time.Duration{},
		HistErr:   map[string]error{},
		MediaOf:   map[string]*remote.Media{},
		events:    make(chan remote.Event, 64),
		histCalls: map[string]int{},
	}
}

var _ remote.Client = (*Fake)(nil)

// Emit pushes a provider event. It reports false once the client is closed.
func (f *Fake) Emit(ev remote.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.events <- ev
	return true
}

func (f *Fake) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.initCalls++
	f.mu.Unlock()
	return f.InitErr
}

func (f *Fake) Events() <-chan remote.Event { return f.events }

func (f *Fake) Chats(ctx context.Context) ([]remote.ChatInfo, error) {
	if f.ChatsErr != nil {
		return nil, f.ChatsErr
	}
	out := make([]remote.ChatInfo, len(f.ChatList))
	copy(out, f.ChatList)
	return out, nil
}

func (f *Fake) Contact(ctx context.Context, id string) (remote.Contact, error) {
	c, ok := f.Contacts[id]
	if !ok {
		return remote.Contact{}, fmt.Errorf("contact %s not found", id)
	}
	return c, nil
}

func (f *Fake) ProfilePicURL(ctx context.Context, chatID string) (string, error) {
	if err := wait(ctx, f.PicDelay[chatID]); err != nil {
		return "", err
	}
	return f.Pics[chatID], nil
}

func (f *Fake) FetchMessages(ctx context.Context, chatID string, limit int) ([]remote.MessageInfo, error) {
	f.mu.Lock()
	f.histCalls[chatID]++
	f.mu.Unlock()
	if err := wait(ctx, f.HistDelay[chatID]); err != nil {
		return nil, err
	}
	if err := f.HistErr[chatID]; err != nil {
		return nil, err
	}
	msgs := f.History[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]remote.MessageInfo, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *Fake) DownloadMedia(ctx context.Context, messageID string) (*remote.Media, error) {
	m, ok := f.MediaOf[messageID]
	if !ok {
		return nil, fmt.Errorf("no media for %s", messageID)
	}
	return m, nil
}

func (f *Fake) Send(ctx context.Context, req remote.SendRequest) (string, error) {
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return fmt.Sprintf("true_%s_sent%d", req.To, len(f.sent)), nil
}

func (f *Fake) MarkSeen(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, chatID)
	return nil
}

func (f *Fake) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logoutCall++
	f.mu.Unlock()
	return f.LogoutErr
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// ---- inspection ----

func (f *Fake) Sent() []remote.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.SendRequest(nil), f.sent...)
}

func (f *Fake) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func (f *Fake) HistoryCalls(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histCalls[chatID]
}

func (f *Fake) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

func (f *Fake) LogoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCall
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Factory records every client it builds, keyed by session id.
type Factory struct {
	// Prepare, when set, scripts each new fake before it is returned.
	Prepare func(f *Fake)
	Err     error

	mu      sync.Mutex
	created map[string][]*Fake
}

func (fa *Factory) New(sessionID string) (remote.Client, error) {
	if fa.Err != nil {
		return nil, fa.Err
	}
	f := New(sessionID)
	if fa.Prepare != nil {
		fa.Prepare(f)
	}
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.created == nil {
		fa.created = map[string][]*Fake{}
	}
	fa.created[sessionID] = append(fa.created[sessionID], f)
	return f, nil
}

func (fa *Factory) Count(sessionID string) int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return len(fa.created[sessionID])
}

// Last returns the most recent client built for sessionID, or nil.
func (fa *Factory) Last(sessionID string) *Fake {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	list := fa.created[sessionID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

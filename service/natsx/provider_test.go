package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"LinkHub/module/remote"
	"LinkHub/tools/errs"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTransport stands in for the sidecar: requests are answered by per-subject
// responders, published events go straight to subscribers.
type memTransport struct {
	mu         sync.Mutex
	responders map[string]func(data []byte) ([]byte, error)
	subs       map[string]Handler
	requests   []string
	bodies     map[string][]byte
	unsubbed   []string
}

func newMemTransport() *memTransport {
	return &memTransport{
		responders: map[string]func([]byte) ([]byte, error){},
		subs:       map[string]Handler{},
		bodies:     map[string][]byte{},
	}
}

func (m *memTransport) answer(subject string, reply []byte) {
	m.responders[subject] = func([]byte) ([]byte, error) { return reply, nil }
}

func (m *memTransport) Request(ctx context.Context, subject string, data []byte, _ map[string]string) (Message, error) {
	m.mu.Lock()
	m.requests = append(m.requests, subject)
	m.bodies[subject] = data
	fn, ok := m.responders[subject]
	m.mu.Unlock()
	if !ok {
		return Message{}, nats.ErrNoResponders
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	out, err := fn(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Data: out}, nil
}

func (m *memTransport) Subscribe(subject string, h Handler) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[subject] = h
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, subject)
		m.unsubbed = append(m.unsubbed, subject)
		return nil
	}, nil
}

func (m *memTransport) publish(t *testing.T, subject string, ev remote.Event, hdr map[string]string) {
	t.Helper()
	m.mu.Lock()
	h := m.subs[subject]
	m.mu.Unlock()
	require.NotNil(t, h, "no subscriber on %s", subject)
	data, err := EncodeEvent(ev)
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), Message{Subject: subject, Data: data, Header: hdr}))
}

func recvEvent(t *testing.T, ch <-chan remote.Event) remote.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return remote.Event{}
	}
}

func TestProvider_InitializeAndEvents(t *testing.T) {
	tr := newMemTransport()
	tr.answer("provider.s1.init", ReplyOK(nil))
	c, err := NewFactory(tr, "provider")("s1")
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))

	sub := EventSubject("provider", "s1")
	assert.Equal(t, "provider.s1.events", sub)
	tr.publish(t, sub, remote.Event{Kind: remote.EventQR, QR: "qr-data"}, nil)
	tr.publish(t, sub, remote.Event{Kind: remote.EventReady}, nil)
	tr.publish(t, sub, remote.Event{Kind: remote.EventMessage,
		Message: &remote.MessageInfo{ID: "m1", ChatID: "c1", Body: "hi"},
		Chat:    &remote.ChatInfo{ID: "c1", IsGroup: true}}, nil)

	ev := recvEvent(t, c.Events())
	assert.Equal(t, remote.EventQR, ev.Kind)
	assert.Equal(t, "qr-data", ev.QR)
	assert.Equal(t, remote.EventReady, recvEvent(t, c.Events()).Kind)
	ev = recvEvent(t, c.Events())
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hi", ev.Message.Body)
	assert.True(t, ev.Chat.IsGroup)
}

func TestProvider_Calls(t *testing.T) {
	tr := newMemTransport()
	tr.answer("p.s1.chats", ReplyOK([]remote.ChatInfo{{ID: "a", Timestamp: 5}, {ID: "b"}}))
	tr.answer("p.s1.contact", ReplyOK(remote.Contact{ID: "a", Pushname: "Ann"}))
	tr.answer("p.s1.pic", ReplyOK(map[string]string{"url": "http://pic"}))
	tr.answer("p.s1.messages", ReplyOK([]remote.MessageInfo{{ID: "m1"}}))
	tr.answer("p.s1.media", ReplyOK(remote.Media{MimeType: "image/png", Data: []byte{1, 2, 3}}))
	tr.answer("p.s1.send", ReplyOK(map[string]string{"id": "true_a_X"}))
	tr.answer("p.s1.seen", ReplyOK(nil))
	tr.answer("p.s1.logout", ReplyOK(nil))
	p := newProvider(tr, "p", "s1")
	ctx := context.Background()

	chats, err := p.Chats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
	assert.Equal(t, int64(5), chats[0].Timestamp)

	ct, err := p.Contact(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Ann", ct.Pushname)

	url, err := p.ProfilePicURL(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "http://pic", url)

	msgs, err := p.FetchMessages(ctx, "a", 20)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(tr.bodies["p.s1.messages"], &body))
	assert.EqualValues(t, 20, body["limit"])

	media, err := p.DownloadMedia(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, media.Data)

	id, err := p.Send(ctx, remote.SendRequest{To: "a", Text: "yo"})
	require.NoError(t, err)
	assert.Equal(t, "true_a_X", id)

	require.NoError(t, p.MarkSeen(ctx, "a"))
	require.NoError(t, p.Logout(ctx))
}

func TestProvider_Errors(t *testing.T) {
	tr := newMemTransport()
	tr.answer("provider.s1.chats", ReplyErr("rate limited", false))
	tr.answer("provider.s1.pic", ReplyErr("upstream slow", true))
	tr.answer("provider.s1.media", ReplyOK(nil))
	tr.responders["provider.s1.contact"] = func([]byte) ([]byte, error) { return nil, nats.ErrTimeout }
	p := newProvider(tr, "", "s1")
	ctx := context.Background()

	_, err := p.Chats(ctx)
	assert.True(t, errs.ErrProvider.Is(err))
	_, err = p.ProfilePicURL(ctx, "x")
	assert.True(t, errs.ErrProviderTimeout.Is(err))
	_, err = p.Contact(ctx, "x")
	assert.True(t, errs.ErrProviderTimeout.Is(err))
	_, err = p.DownloadMedia(ctx, "m")
	assert.True(t, errs.ErrProvider.Is(err))

	// 没有侧车在线
	err = p.MarkSeen(ctx, "x")
	assert.True(t, errs.ErrProvider.Is(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	tr.answer("provider.s1.send", ReplyOK(map[string]string{"id": "x"}))
	_, err = p.Send(cancelled, remote.SendRequest{To: "a"})
	assert.Error(t, err)
}

func TestProvider_CloseStopsEvents(t *testing.T) {
	tr := newMemTransport()
	tr.answer("provider.s1.init", ReplyOK(nil))
	p := newProvider(tr, "provider", "s1")
	require.NoError(t, p.Initialize(context.Background()))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, open := <-p.Events()
	assert.False(t, open)
	assert.Equal(t, []string{"provider.s1.events"}, tr.unsubbed)

	// 关闭后的事件直接丢弃
	p.push(remote.Event{Kind: remote.EventReady})
	assert.True(t, errs.ErrProvider.Is(p.Initialize(context.Background())))
}

func TestProvider_CloseUnblocksFullBuffer(t *testing.T) {
	p := newProvider(newMemTransport(), "provider", "s1")
	for i := 0; i < eventBuffer; i++ {
		p.push(remote.Event{Kind: remote.EventAck, Ack: &remote.AckInfo{MessageID: "m"}})
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.push(remote.Event{Kind: remote.EventReady})
	}()
	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push still blocked after close")
	}
}

type mapSeen struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (s *mapSeen) SeenOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return true, nil
	}
	s.keys[key] = true
	return false, nil
}

func TestProvider_RedeliveredEventDropped(t *testing.T) {
	tr := newMemTransport()
	tr.answer("provider.s1.init", ReplyOK(nil))
	store := &mapSeen{keys: map[string]bool{}}
	c, _ := NewFactory(tr, "provider", IdemMiddleware(store, time.Minute))("s1")
	require.NoError(t, c.Initialize(context.Background()))

	sub := EventSubject("provider", "s1")
	ev := remote.Event{Kind: remote.EventAck, Ack: &remote.AckInfo{MessageID: "m1", Ack: 2}}
	tr.publish(t, sub, ev, map[string]string{HeaderMsgID: "e1"})
	tr.publish(t, sub, ev, map[string]string{HeaderMsgID: "e1"})
	tr.publish(t, sub, remote.Event{Kind: remote.EventReady}, nil)

	assert.Equal(t, remote.EventAck, recvEvent(t, c.Events()).Kind)
	assert.Equal(t, remote.EventReady, recvEvent(t, c.Events()).Kind)
}

func TestIdemMiddleware_StoreErrorPassesThrough(t *testing.T) {
	calls := 0
	h := Chain(func(context.Context, Message) error { calls++; return nil },
		IdemMiddleware(&mapSeen{err: errors.New("down")}, time.Minute))
	for i := 0; i < 2; i++ {
		require.NoError(t, h(context.Background(), Message{Header: map[string]string{HeaderMsgID: "x"}}))
	}
	assert.Equal(t, 2, calls)
}

func TestRecover(t *testing.T) {
	h := Chain(func(context.Context, Message) error { panic("boom") }, Recover())
	err := h(context.Background(), Message{Subject: "s"})
	assert.ErrorContains(t, err, "boom")
}

func TestFactory_EmptySession(t *testing.T) {
	_, err := NewFactory(newMemTransport(), "provider")("")
	assert.True(t, errs.ErrArgs.Is(err))
}

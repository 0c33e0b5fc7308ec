package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"LinkHub/module/model"
	"LinkHub/module/model/modeltest"
	"LinkHub/module/remote"
	"LinkHub/module/remote/remotetest"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSession = "s1"
	waitFor     = 2 * time.Second
	tick        = 5 * time.Millisecond
)

type fakeSyncer struct {
	runs    chan string
	block   chan struct{}
	stopped chan error
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{runs: make(chan string, 8), stopped: make(chan error, 8)}
}

func (s *fakeSyncer) Run(ctx context.Context, sessionID string, _ remote.Client) error {
	s.runs <- sessionID
	if s.block == nil {
		return nil
	}
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		s.stopped <- ctx.Err()
		return ctx.Err()
	}
}

type fakeInbound struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeInbound) HandleMessage(_ context.Context, _ string, _ remote.Client, msg remote.MessageInfo, _ *remote.ChatInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, "msg:"+msg.ID)
}

func (f *fakeInbound) HandleAck(_ context.Context, _ string, ack remote.AckInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, "ack:"+ack.MessageID)
}

func (f *fakeInbound) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type harness struct {
	mgr     *Manager
	reg     *Registry
	factory *remotetest.Factory
	store   *storage.MemoryStore
	out     *modeltest.Recorder
	syncer  *fakeSyncer
	inbound *fakeInbound
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		reg:     NewRegistry(),
		factory: &remotetest.Factory{},
		store:   storage.NewMemoryStore(),
		out:     modeltest.NewRecorder(),
		syncer:  newFakeSyncer(),
		inbound: &fakeInbound{},
	}
	h.mgr = NewManager(h.reg, h.factory.New, h.store, h.out, h.syncer, h.inbound, Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.mgr.Close(ctx)
	})
	return h
}

// startReady starts the session and drives it to READY.
func (h *harness) startReady(t *testing.T) *remotetest.Fake {
	t.Helper()
	require.NoError(t, h.mgr.StartSession(testSession, &modeltest.Emitter{}))
	f := h.factory.Last(testSession)
	require.NotNil(t, f)
	require.True(t, f.Emit(remote.Event{Kind: remote.EventReady}))
	require.Eventually(t, func() bool { return h.mgr.State(testSession) == Ready }, waitFor, tick)
	return f
}

func (h *harness) status(id string) model.SessionStatus {
	s, _ := h.store.Session(id)
	return s.Status
}

func TestStartSession_QuickRepeatBuildsOneClient(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	emitters := make([]*modeltest.Emitter, 5)
	for i := range emitters {
		emitters[i] = &modeltest.Emitter{}
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.mgr.StartSession(testSession, emitters[i]))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.factory.Count(testSession))
	assert.Equal(t, 1, h.reg.Len())

	initializing := 0
	for _, em := range emitters {
		for _, rec := range em.Records() {
			if rec.Payload == model.TextInitializing {
				initializing++
			}
		}
	}
	assert.Equal(t, 4, initializing, "every later caller is told the session is initializing")
	assert.Equal(t, model.StatusInitializing, h.status(testSession))
}

func TestStartSession_ReadyReattach(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	em := &modeltest.Emitter{}
	require.NoError(t, h.mgr.StartSession(testSession, em))
	assert.Equal(t, []modeltest.Record{
		{Event: model.EventReady, Payload: model.TextConnected},
		{Event: model.EventStatus, Payload: model.TextRestored},
	}, em.Records())
	assert.Equal(t, 1, h.factory.Count(testSession))
}

func TestStartSession_EmptyID(t *testing.T) {
	h := newHarness(t)
	err := h.mgr.StartSession("", &modeltest.Emitter{})
	assert.True(t, errors.Is(err, errs.ErrArgs))
}

func TestLifecycle_QRThenReadyTriggersSync(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.StartSession(testSession, &modeltest.Emitter{}))
	f := h.factory.Last(testSession)

	const qr = "data:image/png;base64,AAAA"
	f.Emit(remote.Event{Kind: remote.EventQR, QR: qr})
	require.True(t, h.out.WaitFor(testSession, model.EventQR, waitFor))
	assert.Equal(t, []any{qr}, h.out.Payloads(testSession, model.EventQR), "challenge forwarded unchanged")
	assert.Equal(t, AwaitingCredential, h.mgr.State(testSession))

	f.Emit(remote.Event{Kind: remote.EventReady})
	select {
	case id := <-h.syncer.runs:
		assert.Equal(t, testSession, id)
	case <-time.After(waitFor):
		t.Fatal("sync did not start after ready")
	}
	assert.Equal(t, Ready, h.mgr.State(testSession))
	assert.Equal(t, model.StatusReady, h.status(testSession))

	events := h.out.Events(testSession)
	assert.Equal(t, []string{model.EventQR, model.EventStatus, model.EventReady, model.EventStatus}, events)
}

func TestForceSync(t *testing.T) {
	h := newHarness(t)
	assert.True(t, errors.Is(h.mgr.ForceSync(testSession), errs.ErrSessionNotReady))

	h.syncer.block = make(chan struct{})
	h.startReady(t)
	<-h.syncer.runs

	assert.True(t, errors.Is(h.mgr.ForceSync(testSession), errs.ErrSyncRunning), "one run per session")

	close(h.syncer.block)
	e, _ := h.reg.Get(testSession)
	require.Eventually(t, func() bool { return !e.Syncing() }, waitFor, tick)
	require.NoError(t, h.mgr.ForceSync(testSession))
	<-h.syncer.runs
}

func TestDisconnect_ReleasesAndStopsSync(t *testing.T) {
	h := newHarness(t)
	h.syncer.block = make(chan struct{})
	f := h.startReady(t)
	<-h.syncer.runs

	f.Emit(remote.Event{Kind: remote.EventDisconnected, Reason: "NAVIGATION"})

	select {
	case err := <-h.syncer.stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("in-flight sync was not cancelled")
	}
	require.Eventually(t, func() bool { return h.reg.Len() == 0 }, waitFor, tick)
	assert.True(t, f.Closed())
	require.Eventually(t, func() bool { return h.status(testSession) == model.StatusDisconnected }, waitFor, tick)
	assert.Contains(t, h.out.Payloads(testSession, model.EventStatus), any(model.TextDisconnected))
}

func TestAuthFailure_TearsDown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.StartSession(testSession, &modeltest.Emitter{}))
	f := h.factory.Last(testSession)

	f.Emit(remote.Event{Kind: remote.EventAuthFailure, Reason: "bad creds"})
	require.True(t, h.out.WaitFor(testSession, model.EventAuthFailure, waitFor))
	assert.Equal(t, []any{model.TextAuthFailureBase + ": bad creds"}, h.out.Payloads(testSession, model.EventAuthFailure))
	require.Eventually(t, func() bool { return h.reg.Len() == 0 }, waitFor, tick)
	assert.True(t, f.Closed())
}

func TestLogout_ReleasesResources(t *testing.T) {
	h := newHarness(t)
	first := h.startReady(t)

	require.NoError(t, h.mgr.Logout(testSession))
	assert.Zero(t, h.reg.Len())
	assert.Equal(t, Uninitialized, h.mgr.State(testSession))
	assert.Equal(t, 1, first.LogoutCalls())
	assert.True(t, first.Closed())
	assert.Equal(t, model.StatusDisconnected, h.status(testSession))
	assert.Contains(t, h.out.Payloads(testSession, model.EventStatus), any(model.TextDisconnected))

	require.NoError(t, h.mgr.StartSession(testSession, &modeltest.Emitter{}))
	assert.Equal(t, 2, h.factory.Count(testSession))
	assert.NotSame(t, first, h.factory.Last(testSession), "fresh client after logout")
}

func TestLogout_RemoteFailureStillCloses(t *testing.T) {
	h := newHarness(t)
	h.factory.Prepare = func(f *remotetest.Fake) { f.LogoutErr = errors.New("browser gone") }
	f := h.startReady(t)

	require.NoError(t, h.mgr.Logout(testSession))
	assert.True(t, f.Closed())
	assert.Zero(t, h.reg.Len())

	assert.True(t, errors.Is(h.mgr.Logout(testSession), errs.ErrSessionNotFound))
}

func TestInitFailure_RemovesEntry(t *testing.T) {
	h := newHarness(t)
	h.factory.Prepare = func(f *remotetest.Fake) { f.InitErr = errors.New("chromium crashed") }
	em := &modeltest.Emitter{}

	require.NoError(t, h.mgr.StartSession(testSession, em))
	require.Eventually(t, func() bool { return h.reg.Len() == 0 }, waitFor, tick)

	require.Eventually(t, func() bool {
		for _, rec := range em.Records() {
			if rec.Payload == model.TextInitFailed {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.True(t, h.factory.Last(testSession).Closed())

	h.factory.Prepare = nil
	require.NoError(t, h.mgr.StartSession(testSession, &modeltest.Emitter{}))
	assert.Equal(t, 2, h.factory.Count(testSession))
}

func TestFactoryError(t *testing.T) {
	h := newHarness(t)
	h.factory.Err = errors.New("no capacity")
	em := &modeltest.Emitter{}

	err := h.mgr.StartSession(testSession, em)
	assert.True(t, errors.Is(err, errs.ErrProvider))
	assert.Zero(t, h.reg.Len())
	require.NotEmpty(t, em.Records())
	assert.Equal(t, model.TextInitFailed, em.Records()[0].Payload)
}

func TestDispatch_RoutesInboundInOrder(t *testing.T) {
	h := newHarness(t)
	f := h.startReady(t)

	f.Emit(remote.Event{Kind: remote.EventMessage, Message: &remote.MessageInfo{ID: "m1"}})
	f.Emit(remote.Event{Kind: remote.EventAck, Ack: &remote.AckInfo{MessageID: "m1", Ack: 2}})
	f.Emit(remote.Event{Kind: remote.EventAck, Ack: &remote.AckInfo{MessageID: "m1", Ack: 3}})
	f.Emit(remote.Event{Kind: remote.EventMessage})

	require.Eventually(t, func() bool { return len(h.inbound.Seen()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"msg:m1", "ack:m1", "ack:m1"}, h.inbound.Seen())
}

func TestRegistry_ReadyClient(t *testing.T) {
	reg := NewRegistry()
	f := remotetest.New("a")
	e := newEntry("a", f)
	reg.put(e)

	_, ok := reg.ReadyClient("a")
	assert.False(t, ok)

	_, moved := e.move(Ready)
	require.True(t, moved)
	c, ok := reg.ReadyClient("a")
	require.True(t, ok)
	assert.Same(t, f, c)

	assert.False(t, reg.remove("a", newEntry("a", f)), "stale entry does not remove the live one")
	assert.True(t, reg.remove("a", e))
}

func TestRegistry_LocksFreedAfterRelease(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		reg.Lock(id)()
	}
	assert.Zero(t, reg.lockCount())

	// contended key: the second holder waits and the lock survives until both release
	unlock := reg.Lock("a")
	var (
		mu    sync.Mutex
		order []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := reg.Lock("a")
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		release()
	}()
	require.Eventually(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return reg.locks["a"] != nil && reg.locks["a"].refs == 2
	}, waitFor, tick)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlock()
	<-done

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Zero(t, reg.lockCount())
}

func TestLogout_FreesSessionLock(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)
	require.NoError(t, h.mgr.Logout(testSession))
	require.Eventually(t, func() bool { return h.reg.lockCount() == 0 }, waitFor, tick)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canMove(Initializing, AwaitingCredential))
	assert.True(t, canMove(AwaitingCredential, Ready))
	assert.True(t, canMove(Initializing, Ready))
	assert.False(t, canMove(Disconnected, Ready))
	assert.False(t, canMove(Ready, AwaitingCredential))
	assert.False(t, canMove(Disconnected, Disconnected))
	assert.Equal(t, "awaiting_credential", AwaitingCredential.String())
}

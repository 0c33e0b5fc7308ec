// Package session owns the linked account sessions of a worker: the registry
// of live entries and the lifecycle that drives each one from its client's
// event stream.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"LinkHub/logger"
	"LinkHub/module/model"
	"LinkHub/module/remote"
	"LinkHub/service/metrics"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"
	"LinkHub/tools/safe"

	"go.uber.org/zap"
)

// Syncer mirrors a ready session's chats and history into the store.
type Syncer interface {
	Run(ctx context.Context, sessionID string, client remote.Client) error
}

// Inbound consumes content and ack events of a session.
type Inbound interface {
	HandleMessage(ctx context.Context, sessionID string, client remote.Client, msg remote.MessageInfo, chat *remote.ChatInfo)
	HandleAck(ctx context.Context, sessionID string, ack remote.AckInfo)
}

// ===== 配置 =====

type Config struct {
	InitTimeout   time.Duration // 客户端启动上限
	LogoutTimeout time.Duration
	StoreTimeout  time.Duration // 状态落库
}

func (c Config) norm() Config {
	if c.InitTimeout <= 0 {
		c.InitTimeout = 2 * time.Minute
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = 10 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	return c
}

type Manager struct {
	reg     *Registry
	factory remote.Factory
	store   storage.Store
	out     model.Broadcaster
	syncer  Syncer
	inbound Inbound
	conf    Config

	wg sync.WaitGroup
}

func NewManager(reg *Registry, factory remote.Factory, store storage.Store, out model.Broadcaster,
	syncer Syncer, inbound Inbound, conf Config) *Manager {
	safe.MustNotNil(reg, "registry")
	safe.MustNotNil(factory, "client factory")
	return &Manager{
		reg:     reg,
		factory: factory,
		store:   store,
		out:     out,
		syncer:  syncer,
		inbound: inbound,
		conf:    conf.norm(),
	}
}

// StartSession attaches caller to session id, creating the session when it
// does not exist. A live session is reused: READY answers ready/restored,
// anything earlier answers "initializing". Only the first call builds a client.
func (m *Manager) StartSession(id string, caller model.Emitter) error {
	if id == "" {
		return errs.ErrArgs.WrapMsg("sessionId is required")
	}
	unlock := m.reg.Lock(id)
	defer unlock()

	if e, ok := m.reg.Get(id); ok {
		if e.State() == Ready {
			caller.Emit(model.EventReady, model.TextConnected)
			caller.Emit(model.EventStatus, model.TextRestored)
		} else {
			caller.Emit(model.EventStatus, model.TextInitializing)
		}
		return nil
	}

	client, err := m.factory(id)
	if err != nil {
		logger.Error("[Session] create client failed", zap.String("session", id), zap.Error(err))
		caller.Emit(model.EventStatus, model.TextInitFailed)
		return errs.ErrProvider.WrapMsg("create client", "session", id, "err", err)
	}

	e := newEntry(id, client)
	m.reg.put(e)
	metrics.SessionsLive.Inc()
	metrics.SessionTransitions.WithLabelValues(Initializing.String()).Inc()
	m.persist(id, model.StatusInitializing)

	logger.Info("[Session] starting", zap.String("session", id))
	caller.Emit(model.EventStatus, model.TextStarting)

	m.wg.Add(2)
	safe.SafeGo("session-dispatch-"+id, func() {
		defer m.wg.Done()
		m.dispatch(e)
	})
	safe.SafeGo("session-init-"+id, func() {
		defer m.wg.Done()
		m.initialize(e, caller)
	})
	return nil
}

func (m *Manager) initialize(e *Entry, caller model.Emitter) {
	ctx, cancel := context.WithTimeout(e.ctx, m.conf.InitTimeout)
	defer cancel()
	err := e.client.Initialize(ctx)
	if err == nil {
		return
	}
	if e.ctx.Err() != nil {
		// 已被登出或断开，不再提示
		return
	}
	logger.Error("[Session] initialize failed", zap.String("session", e.ID), zap.Error(err))
	caller.Emit(model.EventStatus, model.TextInitFailed)
	m.release(e, "init failed", false)
}

// dispatch is the only reader of the client's events. It runs until the
// client closes its stream.
func (m *Manager) dispatch(e *Entry) {
	for ev := range e.client.Events() {
		if e.State() == Disconnected {
			continue // 关闭后剩余事件直接丢弃
		}
		m.handle(e, ev)
	}
	if e.State() != Disconnected {
		logger.Warn("[Session] event stream ended", zap.String("session", e.ID))
		m.release(e, "event stream closed", true)
	}
}

func (m *Manager) handle(e *Entry, ev remote.Event) {
	log := logger.With(zap.String("session", e.ID), zap.Stringer("event", ev.Kind))
	switch ev.Kind {
	case remote.EventQR:
		if _, ok := e.move(AwaitingCredential); !ok {
			log.Warn("[Session] credential challenge ignored", zap.Stringer("state", e.State()))
			return
		}
		metrics.SessionTransitions.WithLabelValues(AwaitingCredential.String()).Inc()
		m.out.Broadcast(e.ID, model.EventQR, ev.QR)
		m.out.Broadcast(e.ID, model.EventStatus, model.TextAwaitingQR)

	case remote.EventReady:
		if _, ok := e.move(Ready); !ok {
			log.Warn("[Session] ready ignored", zap.Stringer("state", e.State()))
			return
		}
		metrics.SessionTransitions.WithLabelValues(Ready.String()).Inc()
		log.Info("[Session] ready")
		m.out.Broadcast(e.ID, model.EventReady, model.TextConnected)
		m.out.Broadcast(e.ID, model.EventStatus, model.TextActive)
		m.persist(e.ID, model.StatusReady)
		m.startSync(e)

	case remote.EventAuthFailure:
		log.Warn("[Session] auth failure", zap.String("reason", ev.Reason))
		text := model.TextAuthFailureBase
		if ev.Reason != "" {
			text += ": " + ev.Reason
		}
		m.out.Broadcast(e.ID, model.EventAuthFailure, text)
		m.release(e, "auth failure", true)

	case remote.EventDisconnected:
		log.Info("[Session] disconnected", zap.String("reason", ev.Reason))
		m.release(e, ev.Reason, true)

	case remote.EventMessage:
		if ev.Message == nil || m.inbound == nil {
			return
		}
		m.inbound.HandleMessage(e.ctx, e.ID, e.client, *ev.Message, ev.Chat)

	case remote.EventAck:
		if ev.Ack == nil || m.inbound == nil {
			return
		}
		m.inbound.HandleAck(e.ctx, e.ID, *ev.Ack)

	default:
		log.Debug("[Session] unknown event dropped")
	}
}

// startSync runs the syncer in the background unless a run is already in flight.
func (m *Manager) startSync(e *Entry) bool {
	if m.syncer == nil || !e.beginSync() {
		return false
	}
	m.wg.Add(1)
	safe.SafeGo("session-sync-"+e.ID, func() {
		defer m.wg.Done()
		defer e.endSync()
		err := m.syncer.Run(e.ctx, e.ID, e.client)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			logger.Info("[Session] sync stopped", zap.String("session", e.ID))
		default:
			logger.Error("[Session] sync failed", zap.String("session", e.ID), zap.Error(err))
		}
	})
	return true
}

// ForceSync re-runs the sync of a READY session.
func (m *Manager) ForceSync(id string) error {
	e, ok := m.reg.Get(id)
	if !ok || e.State() != Ready {
		return errs.ErrSessionNotReady.WrapMsg("force sync", "session", id)
	}
	if !m.startSync(e) {
		logger.Info("[Session] force sync skipped, run in flight", zap.String("session", id))
		return errs.ErrSyncRunning.WrapMsg("force sync", "session", id)
	}
	logger.Info("[Session] force sync", zap.String("session", id))
	return nil
}

// Logout signs the session out on the provider and releases it. The local
// client is closed even when the remote logout fails.
func (m *Manager) Logout(id string) error {
	unlock := m.reg.Lock(id)
	e, ok := m.reg.Get(id)
	if !ok {
		unlock()
		return errs.ErrSessionNotFound.WrapMsg("logout", "session", id)
	}
	m.reg.remove(id, e)
	_, moved := e.move(Disconnected)
	unlock()

	e.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), m.conf.LogoutTimeout)
	defer cancel()
	if err := e.client.Logout(ctx); err != nil {
		logger.Warn("[Session] remote logout failed, forcing release", zap.String("session", id), zap.Error(err))
	}
	m.finish(e, moved, true)
	logger.Info("[Session] logged out", zap.String("session", id))
	return nil
}

// release tears down e if it is still the registered entry for its id.
func (m *Manager) release(e *Entry, reason string, persist bool) {
	unlock := m.reg.Lock(e.ID)
	removed := m.reg.remove(e.ID, e)
	_, moved := e.move(Disconnected)
	unlock()
	if !removed && !moved {
		return
	}
	e.cancel()
	logger.Info("[Session] released", zap.String("session", e.ID), zap.String("reason", reason))
	m.finish(e, moved, persist)
}

func (m *Manager) finish(e *Entry, moved, persist bool) {
	if err := e.client.Close(); err != nil {
		logger.Warn("[Session] close client failed", zap.String("session", e.ID), zap.Error(err))
	}
	if moved {
		metrics.SessionsLive.Dec()
		metrics.SessionTransitions.WithLabelValues(Disconnected.String()).Inc()
	}
	if persist {
		m.out.Broadcast(e.ID, model.EventStatus, model.TextDisconnected)
		m.persist(e.ID, model.StatusDisconnected)
	}
}

func (m *Manager) persist(id string, status model.SessionStatus) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.conf.StoreTimeout)
	defer cancel()
	if err := m.store.UpsertSession(ctx, model.Session{ID: id, Status: status, UpdatedAt: time.Now()}); err != nil {
		logger.Error("[Session] persist status failed", zap.String("session", id),
			zap.String("status", string(status)), zap.Error(err))
	}
}

// State reports the lifecycle state of id; unknown ids are Uninitialized.
func (m *Manager) State(id string) State {
	e, ok := m.reg.Get(id)
	if !ok {
		return Uninitialized
	}
	return e.State()
}

// Close releases every session and waits for their goroutines, or for ctx.
func (m *Manager) Close(ctx context.Context) error {
	for _, e := range m.reg.Snapshot() {
		m.release(e, "shutdown", true)
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"LinkHub/module/model"
)

// MemoryStore keeps everything in process. Used by tests and single node dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	chats    map[string]model.Chat
	messages map[string]model.Message
	seq      map[string]int64 // provider id -> insertion order, breaks timestamp ties
	next     int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
		chats:    make(map[string]model.Chat),
		messages: make(map[string]model.Message),
		seq:      make(map[string]int64),
	}
}

func (m *MemoryStore) UpsertSession(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Session(id string) (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) UpsertChats(_ context.Context, chats []model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chats {
		if old, ok := m.chats[c.ID]; ok && c.ProfilePicURL == "" {
			c.ProfilePicURL = old.ProfilePicURL
		}
		m.chats[c.ID] = c
	}
	return nil
}

func (m *MemoryStore) TouchChat(_ context.Context, c model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.chats[c.ID]
	if !ok {
		m.chats[c.ID] = c
		return nil
	}
	old.SessionID = c.SessionID
	old.LastMessage = c.LastMessage
	old.Timestamp = c.Timestamp
	if c.ContactName != "" && c.ContactName != c.ID {
		old.ContactName = c.ContactName
	}
	m.chats[c.ID] = old
	return nil
}

func (m *MemoryStore) InsertMessages(_ context.Context, msgs []model.Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, msg := range msgs {
		if _, ok := m.messages[msg.ProviderID]; ok {
			continue
		}
		m.next++
		m.messages[msg.ProviderID] = msg
		m.seq[msg.ProviderID] = m.next
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) UpdateAck(_ context.Context, providerID string, ack model.AckLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[providerID]
	if !ok {
		return nil
	}
	msg.Ack = msg.Ack.Max(ack)
	m.messages[providerID] = msg
	return nil
}

func (m *MemoryStore) MarkChatRead(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chats[chatID]; ok {
		c.UnreadCount = 0
		m.chats[chatID] = c
	}
	return nil
}

func (m *MemoryStore) ListChats(_ context.Context, sessionID string) ([]model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Chat, 0)
	for _, c := range m.chats {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, chatID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Message, 0)
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return m.seq[out[i].ProviderID] < m.seq[out[j].ProviderID]
	})
	return out, nil
}

func (m *MemoryStore) ChatSession(_ context.Context, chatID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chats[chatID].SessionID, nil
}

// Counts reports stored chats and messages.
func (m *MemoryStore) Counts() (chats, messages int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chats), len(m.messages)
}

func (m *MemoryStore) Message(providerID string) (model.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[providerID]
	return msg, ok
}

func (m *MemoryStore) Chat(id string) (model.Chat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	return c, ok
}

func (m *MemoryStore) Close() error { return nil }

// MemoryObjects is an ObjectStore kept in process; URLs are baseURL + "/" + key.
type MemoryObjects struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]Object
}

type Object struct {
	ContentType string
	Data        []byte
}

var _ ObjectStore = (*MemoryObjects)(nil)

func NewMemoryObjects(baseURL string) *MemoryObjects {
	return &MemoryObjects{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string]Object)}
}

func (o *MemoryObjects) Upload(_ context.Context, key, contentType string, data []byte) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return o.baseURL + "/" + key, nil
}

func (o *MemoryObjects) Get(key string) (Object, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[key]
	return obj, ok
}

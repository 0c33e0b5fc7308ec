package session

import (
	"context"
	"sync"
	"time"

	"LinkHub/module/remote"
)

// ===== 数据结构 =====

// Entry is one live session. Its fields are written only under mu.
type Entry struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	client  remote.Client
	syncing bool

	ctx    context.Context // 会话生命周期，断开时取消
	cancel context.CancelFunc
}

func newEntry(id string, client remote.Client) *Entry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Entry{
		ID:        id,
		CreatedAt: time.Now(),
		state:     Initializing,
		client:    client,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Entry) Client() remote.Client {
	return e.client
}

// move applies a transition and returns the previous state. Illegal moves
// leave the entry unchanged and report ok=false.
func (e *Entry) move(to State) (prev State, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev = e.state
	if !canMove(prev, to) {
		return prev, false
	}
	e.state = to
	return prev, true
}

// beginSync claims the single sync slot of a READY entry.
func (e *Entry) beginSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Ready || e.syncing {
		return false
	}
	e.syncing = true
	return true
}

func (e *Entry) endSync() {
	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()
}

func (e *Entry) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// Registry maps session ids to live entries. Mutations for one id are
// serialized through that id's lock; different ids never contend.
type Registry struct {
	entries sync.Map // id -> *Entry

	mu    sync.Mutex // guards locks only, never held while waiting on a key
	locks map[string]*keyLock
}

// keyLock is dropped from the table once nobody holds or waits for it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*keyLock)}
}

// Lock takes the per-id lock and returns its release func.
func (r *Registry) Lock(id string) func() {
	r.mu.Lock()
	l := r.locks[id]
	if l == nil {
		l = &keyLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func (r *Registry) Get(id string) (*Entry, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// put stores e. Callers hold Lock(e.ID).
func (r *Registry) put(e *Entry) {
	r.entries.Store(e.ID, e)
}

// remove deletes id only while it still maps to e, so a stale teardown
// cannot drop a newer entry. Callers hold Lock(id).
func (r *Registry) remove(id string, e *Entry) bool {
	return r.entries.CompareAndDelete(id, e)
}

// ReadyClient returns the client of a READY session.
func (r *Registry) ReadyClient(id string) (remote.Client, bool) {
	e, ok := r.Get(id)
	if !ok || e.State() != Ready {
		return nil, false
	}
	return e.client, true
}

func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Snapshot lists the current entries in no particular order.
func (r *Registry) Snapshot() []*Entry {
	var out []*Entry
	r.entries.Range(func(_, v any) bool {
		out = append(out, v.(*Entry))
		return true
	})
	return out
}

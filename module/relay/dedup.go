package relay

import (
	"context"
	"sync"
	"time"
)

// IdemStore remembers keys for a short window. SeenOnce reports whether key was
// already recorded and not yet expired; otherwise it records it.
type IdemStore interface {
	SeenOnce(ctx context.Context, key string, ttl time.Duration) (seen bool, err error)
}

// ----- 内存实现（单进程） -----
type memIdem struct {
	mu   sync.Mutex
	m    map[string]time.Time // key -> expire
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewMemIdem starts an in-process IdemStore. Close stops its cleanup loop.
func NewMemIdem(defaultTTL time.Duration) *memIdem {
	mi := &memIdem{m: make(map[string]time.Time), ttl: defaultTTL, stop: make(chan struct{})}
	// 清理协程
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-mi.stop:
				return
			case now := <-t.C:
				mi.sweep(now)
			}
		}
	}()
	return mi
}

func (mi *memIdem) SeenOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := time.Now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil // 已见过
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

func (mi *memIdem) sweep(now time.Time) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	for k, exp := range mi.m {
		if !exp.After(now) {
			delete(mi.m, k)
		}
	}
}

func (mi *memIdem) Close() {
	mi.once.Do(func() { close(mi.stop) })
}

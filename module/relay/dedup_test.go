package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"LinkHub/tools/errs"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemIdem_Window(t *testing.T) {
	mi := NewMemIdem(time.Second)
	defer mi.Close()
	ctx := context.Background()

	seen, err := mi.SeenOnce(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, _ = mi.SeenOnce(ctx, "k", 50*time.Millisecond)
	assert.True(t, seen)

	time.Sleep(80 * time.Millisecond)
	seen, _ = mi.SeenOnce(ctx, "k", 50*time.Millisecond)
	assert.False(t, seen, "expired keys are fresh again")
}

func TestMemIdem_Sweep(t *testing.T) {
	mi := NewMemIdem(time.Second)
	defer mi.Close()
	_, _ = mi.SeenOnce(context.Background(), "old", time.Millisecond)
	mi.sweep(time.Now().Add(time.Second))
	mi.mu.Lock()
	defer mi.mu.Unlock()
	assert.Empty(t, mi.m)
}

type fakeSetNX struct {
	keys map[string]bool
	err  error
	ttl  time.Duration
}

func (f *fakeSetNX) SetNX(ctx context.Context, key string, _ any, ttl time.Duration) *redis.BoolCmd {
	f.ttl = ttl
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestRedisIdem(t *testing.T) {
	f := &fakeSetNX{keys: map[string]bool{}}
	ri := &redisIdem{rdb: f, ttl: 3 * time.Second}
	ctx := context.Background()

	seen, err := ri.SeenOnce(ctx, "a", 0)
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 3*time.Second, f.ttl, "default ttl")
	assert.True(t, f.keys[dedupKeyPrefix+"a"])

	seen, err = ri.SeenOnce(ctx, "a", time.Second)
	require.NoError(t, err)
	assert.True(t, seen)

	f.err = errors.New("conn refused")
	_, err = ri.SeenOnce(ctx, "b", 0)
	assert.True(t, errors.Is(err, errs.ErrStorage))
}

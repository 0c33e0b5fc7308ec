package relay

import (
	"context"
	"time"

	"LinkHub/tools/errs"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "linkhub:dedup:"

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// redisIdem shares the suppression window across workers with SET NX PX.
type redisIdem struct {
	rdb setNXer
	ttl time.Duration
}

func NewRedisIdem(rdb redis.Cmdable, defaultTTL time.Duration) IdemStore {
	return &redisIdem{rdb: rdb, ttl: defaultTTL}
}

func (ri *redisIdem) SeenOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = ri.ttl
	}
	ok, err := ri.rdb.SetNX(ctx, dedupKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, errs.ErrStorage.WrapMsg("dedup setnx", "key", key, "err", err)
	}
	// SETNX 成功说明第一次见到
	return !ok, nil
}

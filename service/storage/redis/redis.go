package redis

import (
	"context"
	"time"

	"LinkHub/global/config"
	"LinkHub/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Open 创建 Redis 客户端并 ping 一次，失败时关闭连接
func Open(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.ErrStorage.WrapMsg("redis ping failed", "addr", c.Addr, "err", err)
	}
	return rdb, nil
}

package gateway

import (
	"context"
	"fmt"

	"LinkHub/tools/errs"

	"github.com/redis/go-redis/v9"
)

const tableKeyPrefix = "linkhub:gateway:"

// 原子分配：KEYS[1]=assignment hash; KEYS[2]=counter; ARGV=worker pool
// 返回：{worker, 1} 新分配；{worker, 0} 已存在
var luaAssign = redis.NewScript(`
  local w = redis.call('HGET', KEYS[1], ARGV[1])
  if w then
    return {w, 0}
  end
  local n = redis.call('INCR', KEYS[2])
  local pool = #ARGV - 1
  w = ARGV[((n - 1) % pool) + 2]
  redis.call('HSET', KEYS[1], ARGV[1], w)
  return {w, 1}
`)

// RedisTable shares assignments between gateway replicas. Keys carry no TTL;
// assignments live until the keys are dropped by an operator.
type RedisTable struct {
	rdb     redis.Scripter
	workers []string
	hashKey string
	cntKey  string
}

func NewRedisTable(rdb redis.Scripter, workers []string) (*RedisTable, error) {
	if len(workers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("gateway needs at least one worker")
	}
	return &RedisTable{
		rdb:     rdb,
		workers: append([]string(nil), workers...),
		hashKey: tableKeyPrefix + "assignments",
		cntKey:  tableKeyPrefix + "seq",
	}, nil
}

func (t *RedisTable) Resolve(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return t.workers[0], false, nil
	}
	args := make([]any, 0, len(t.workers)+1)
	args = append(args, sessionID)
	for _, w := range t.workers {
		args = append(args, w)
	}
	res, err := luaAssign.Run(ctx, t.rdb, []string{t.hashKey, t.cntKey}, args...).Result()
	if err != nil {
		return "", false, errs.ErrStorage.WrapMsg("resolve assignment", "session", sessionID, "err", err)
	}
	w, isNew, err := parseAssign(res)
	if err != nil {
		return "", false, errs.ErrStorage.WrapMsg("resolve assignment", "session", sessionID, "err", err)
	}
	if isNew {
		assigned(sessionID, w)
	}
	return w, isNew, nil
}

func parseAssign(res any) (string, bool, error) {
	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return "", false, fmt.Errorf("unexpected script reply %T", res)
	}
	w, ok := arr[0].(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected worker %T", arr[0])
	}
	n, ok := arr[1].(int64)
	if !ok {
		return "", false, fmt.Errorf("unexpected flag %T", arr[1])
	}
	return w, n == 1, nil
}

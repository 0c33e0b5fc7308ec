package redis

import (
	"context"
	"testing"

	"LinkHub/global/config"
	"LinkHub/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Unreachable(t *testing.T) {
	// port 1 on loopback refuses connections
	rdb, err := Open(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1", PoolSize: 1})
	require.Error(t, err)
	assert.Nil(t, rdb)
	assert.True(t, errs.ErrStorage.Is(err))
}

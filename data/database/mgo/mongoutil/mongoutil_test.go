package mongoutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{Address: []string{"db1:27017", "db2:27017"}, Database: "linkhub", Username: "u", Password: "p"}
	require.NoError(t, cfg.ValidateAndSetDefaults())
	assert.Equal(t, defaultMaxPoolSize, cfg.MaxPoolSize)
	assert.Equal(t, defaultMaxRetry, cfg.MaxRetry)
	assert.Equal(t, "mongodb://u:p@db1:27017,db2:27017/linkhub?authSource=linkhub&maxPoolSize=100", cfg.Uri)

	assert.Error(t, (&Config{Database: "x"}).ValidateAndSetDefaults())
	assert.Error(t, (&Config{Uri: "mongodb://localhost"}).ValidateAndSetDefaults())
}

func TestBuildMongoURI_NoCredentials(t *testing.T) {
	uri := buildMongoURI(&Config{Address: []string{"localhost:27017"}, Database: "d", MaxPoolSize: 5}, "admin")
	assert.Equal(t, "mongodb://localhost:27017/d?authSource=admin&maxPoolSize=5", uri)
}

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRetry(ctx, errors.New("dial tcp: refused")))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: 18}))
	assert.True(t, shouldRetry(ctx, mongo.CommandError{Code: 11600}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, shouldRetry(cancelled, errors.New("x")))
}

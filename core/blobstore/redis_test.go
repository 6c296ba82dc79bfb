package blobstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed blobstore tests")
	}
	s, err := NewRedis(context.Background(), coreconfig.RedisConfig{Addr: addr}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedis_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestRedis(t)
	key := NewKey()

	require.NoError(t, s.Write(ctx, key, []byte("payload")))
	got, err := s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	ttl, err := s.rdb.TTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Read(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

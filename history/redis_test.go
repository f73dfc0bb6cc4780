package history_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/forgeci/forge/history"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	r := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := history.NewRedisStore(r)
	ctx := context.Background()

	_, err = s.Latest(ctx, "app")
	assert.ErrorIs(t, err, history.ErrNotFound)

	rec := testRecord()
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Latest(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// records are stored per image
	_, err = s.Latest(ctx, "nginx")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolfood/backoffice/internal/platform/logger"
)

func TestNewClientFromAddr(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", mr.Addr())

	rdb, err := NewClient(context.Background(), logger.Nop())
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr()+"/0")
	t.Setenv("REDIS_ADDR", "")

	rdb, err := NewClient(context.Background(), logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, rdb.Close())
}

func TestNewClientRequiresAddress(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")

	_, err := NewClient(context.Background(), logger.Nop())
	assert.Error(t, err)
}


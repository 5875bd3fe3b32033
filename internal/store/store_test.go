package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: config.StoreMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(ctx, config.StoreConfig{Driver: config.StoreRedis, RedisURL: mr.Addr()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "firestore"}, nil)
	assert.ErrorContains(t, err, "unknown store driver")
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/database"
	"chatcore-backend/pkg/config"
)

// unreachableClient points at a port nothing listens on and is forced into degraded mode
func unreachableClient(t *testing.T) *database.RedisClient {
	t.Helper()

	client := database.NewRedisClient(config.RedisConfig{
		Host:     "127.0.0.1",
		Port:     1,
		PoolSize: 1,
		Timeout:  200 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = client.Close() })

	require.Error(t, client.HealthCheck(context.Background()))
	require.True(t, client.IsDegraded())
	return client
}

func TestPresenceRepository_DegradedModeFailsFast(t *testing.T) {
	repo := NewPresenceRepository(unreachableClient(t))
	ctx := context.Background()

	start := time.Now()
	err := repo.SetOnline(ctx, uuid.New(), time.Now())
	assert.ErrorIs(t, err, database.ErrRedisDegraded)

	err = repo.SetOffline(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrRedisDegraded)

	ids, err := repo.OnlineUserIDs(ctx, time.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, database.ErrRedisDegraded)
	assert.Nil(t, ids)

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

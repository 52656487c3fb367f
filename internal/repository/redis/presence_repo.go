package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/database"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/logger"
)

// onlineKey is a sorted set of user IDs scored by last activity (unix seconds)
const onlineKey = "presence:online"

// PresenceRepository mirrors user online state in Redis
type PresenceRepository struct {
	client *database.RedisClient
}

var _ repository.PresenceCache = (*PresenceRepository)(nil)

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// SetOnline records activity for userID at the given time
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if err := r.client.SafeZAdd(ctx, onlineKey, userID.String(), float64(at.Unix())); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	return nil
}

// SetOffline removes userID from the online set
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.SafeZRem(ctx, onlineKey, userID.String()); err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}
	return nil
}

// OnlineUserIDs returns users active at or after since. Older entries are pruned.
func (r *PresenceRepository) OnlineUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	cutoff := float64(since.Unix())

	if err := r.client.SafeZRemRangeByScore(ctx, onlineKey, 0, cutoff-1); err != nil {
		logger.Debug("Failed to prune stale presence entries", zap.Error(err))
	}

	members, err := r.client.SafeZRangeByScore(ctx, onlineKey, cutoff, float64(time.Now().Add(time.Hour).Unix()))
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

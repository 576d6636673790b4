package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
	"trustrails/pkg/platform/sentinel"
)

const stateKeyPrefix = "rollover:state:"

// RedisStore shares cached states between instances. Values are JSON with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Find(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error) {
	raw, err := s.client.Get(ctx, stateKeyPrefix+string(transferID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.CanonicalState{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.CanonicalState{}, fmt.Errorf("get cached state: %w", err)
	}
	var cs models.CanonicalState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return models.CanonicalState{}, fmt.Errorf("decode cached state: %w", err)
	}
	return cs, nil
}

func (s *RedisStore) Save(ctx context.Context, cs models.CanonicalState) error {
	body, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode cached state: %w", err)
	}
	return s.client.Set(ctx, stateKeyPrefix+string(cs.TransferID), body, s.ttl).Err()
}

// Invalidate deletes every key in one round trip.
func (s *RedisStore) Invalidate(ctx context.Context, transferIDs ...id.TransferID) error {
	if len(transferIDs) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, t := range transferIDs {
		pipe.Del(ctx, stateKeyPrefix+string(t))
	}
	_, err := pipe.Exec(ctx)
	return err
}

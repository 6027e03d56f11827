package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for presence heartbeats.
const KeyPrefix = "presence:"

// RedisStore keeps heartbeats in Redis, one key per user with a TTL. Multiple
// daemon instances sharing one Redis see each other's users.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SetHeartbeat(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, KeyPrefix+userID, at.UnixMilli(), ttl).Err()
}

func (s *RedisStore) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, KeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("presence: malformed heartbeat for %s: %w", userID, err)
	}
	return time.UnixMilli(millis), true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"kinderbook/internal/model"
)

const defaultKeyPrefix = "kinderbook:"

// Redis stores snapshots as JSON strings and tracks users in a set.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client. An empty prefix defaults to "kinderbook:".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) snapshotKey(userID string) string {
	return r.prefix + "snapshot:" + userID
}

func (r *Redis) usersKey() string {
	return r.prefix + "users"
}

func (r *Redis) Load(ctx context.Context, userID string) (model.Snapshot, error) {
	val, err := r.client.Get(ctx, r.snapshotKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Snapshot{UserID: userID}, nil
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("redis get: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.UserID = userID
	return snap, nil
}

func (r *Redis) Save(ctx context.Context, userID string, snapshot model.Snapshot) error {
	snapshot.UserID = userID
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.snapshotKey(userID), data, 0)
		pipe.SAdd(ctx, r.usersKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// Users lists stored users in ascending order.
func (r *Redis) Users(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

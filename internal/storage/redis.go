package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/models"
)

const (
	// CacheTTL is the time-to-live for cached file metadata (5 minutes)
	CacheTTL = 5 * time.Minute
)

// RedisCache keeps file metadata warm for the download path. Keys are
// scoped by owner so a cached row can never leak across tenants.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache initializes a new Redis client
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func fileCacheKey(userID, fileID string) string {
	return fmt.Sprintf("file:%s:%s", userID, fileID)
}

// GetFile retrieves cached file metadata. A miss returns (nil, nil).
func (rc *RedisCache) GetFile(ctx context.Context, userID, fileID string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "redis.get_file",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, fileCacheKey(userID, fileID)).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var file models.File
	if err := json.Unmarshal([]byte(data), &file); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached file: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &file, nil
}

// SetFile stores file metadata with the standard TTL.
func (rc *RedisCache) SetFile(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "redis.set_file",
		trace.WithAttributes(attribute.String("file_id", file.ID)),
	)
	defer span.End()

	data, err := json.Marshal(file)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal file: %w", err)
	}

	if err := rc.client.Set(ctx, fileCacheKey(file.UserID, file.ID), data, CacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// InvalidateFile drops cached metadata after a mutation.
func (rc *RedisCache) InvalidateFile(ctx context.Context, userID, fileID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_file",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	if err := rc.client.Del(ctx, fileCacheKey(userID, fileID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}

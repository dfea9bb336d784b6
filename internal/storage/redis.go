package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/logger"
)

// ErrNotFound wraps redis.Nil so callers don't import the redis package.
var ErrNotFound = redis.Nil

// Redis wraps the client plus the app's key conventions: embedding cache,
// upload dedup set, match locks and the per-user rate window.
type Redis struct {
	Client *redis.Client
	cfg    *config.RedisConfig
}

// NewRedisAdapter connects and instruments the client with OpenTelemetry.
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries: cfg.MaxRetries,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	logger.Info().Str("address", cfg.Address).Msg("connected to Redis")
	return &Redis{Client: client, cfg: cfg}, nil
}

// Close closes the client connection.
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// --- Embedding cache ---
// Vectors are content-addressed: key = model version + sha256 of the exact
// input text, so identical text never hits the embedding API twice. Cache
// races on first write are benign, last-writer-wins over identical data.

// GetEmbedding returns the cached vector for (modelVersion, contentHash).
func (r *Redis) GetEmbedding(ctx context.Context, modelVersion, contentHash string) ([]float64, bool, error) {
	key := fmt.Sprintf(constants.KeyEmbeddingCache, modelVersion, contentHash)
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("embedding cache read failed: %w", err)
	}

	var vector []float64
	if err := json.Unmarshal(data, &vector); err != nil {
		// A corrupt entry behaves like a miss; the writer will replace it.
		return nil, false, nil
	}
	return vector, true, nil
}

// SetEmbedding stores a vector with the cache TTL.
func (r *Redis) SetEmbedding(ctx context.Context, modelVersion, contentHash string, vector []float64) error {
	key := fmt.Sprintf(constants.KeyEmbeddingCache, modelVersion, contentHash)
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}
	return r.Client.Set(ctx, key, data, constants.EmbeddingCacheTTL).Err()
}

// EmbeddingCache adapts Redis to the cache interface the embedding package
// consumes.
type EmbeddingCache struct {
	redis *Redis
}

func NewEmbeddingCache(r *Redis) *EmbeddingCache {
	return &EmbeddingCache{redis: r}
}

func (c *EmbeddingCache) Get(ctx context.Context, modelVersion, contentHash string) ([]float64, bool, error) {
	return c.redis.GetEmbedding(ctx, modelVersion, contentHash)
}

func (c *EmbeddingCache) Set(ctx context.Context, modelVersion, contentHash string, vector []float64) error {
	return c.redis.SetEmbedding(ctx, modelVersion, contentHash, vector)
}

// --- Upload dedup ---

// CheckAndRecordUpload adds the content MD5 to the dedup set. Returns true
// when the hash was already present (duplicate upload).
func (r *Redis) CheckAndRecordUpload(ctx context.Context, contentMD5 string) (bool, error) {
	added, err := r.Client.SAdd(ctx, constants.KeyUploadMD5Set, contentMD5).Result()
	if err != nil {
		return false, fmt.Errorf("upload dedup check failed: %w", err)
	}
	// Refresh the TTL on every touch; the set expires as a whole.
	if err := r.Client.Expire(ctx, constants.KeyUploadMD5Set, constants.UploadDedupTTL).Err(); err != nil {
		logger.Warn().Err(err).Msg("failed to refresh dedup set TTL")
	}
	return added == 0, nil
}

// --- Match locks ---

// AcquireMatchLock takes a short exclusive lock on a (resume, job) pair so
// concurrent identical requests don't both run the pipeline. Returns false
// when another run already holds it.
func (r *Redis) AcquireMatchLock(ctx context.Context, resumeID, jobID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(constants.KeyMatchLock, resumeID, jobID)
	ok, err := r.Client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("match lock acquire failed: %w", err)
	}
	return ok, nil
}

// ReleaseMatchLock drops the pair lock.
func (r *Redis) ReleaseMatchLock(ctx context.Context, resumeID, jobID string) error {
	key := fmt.Sprintf(constants.KeyMatchLock, resumeID, jobID)
	return r.Client.Del(ctx, key).Err()
}

// --- Per-user rate window ---

// AllowUserOperation counts one operation against the user's rolling window
// and reports whether they are still under the limit. Shared across
// instances, unlike the in-process token buckets.
func (r *Redis) AllowUserOperation(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(constants.KeyUserRateWindow, userID)

	count, err := r.Client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate window incr failed: %w", err)
	}
	if count == 1 {
		if err := r.Client.Expire(ctx, key, window).Err(); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("failed to set rate window TTL")
		}
	}
	return count <= int64(limit), nil
}

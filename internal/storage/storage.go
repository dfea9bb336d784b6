package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
)

// Storage aggregates every storage backend. Backends are optional: each
// initializes only when configured, and a single working backend is enough
// to start (degraded mode is better than refusing to boot).
type Storage struct {
	// Object storage for raw uploads and parsed text.
	MinIO *MinIO

	// Message queue for background suggestion tasks.
	RabbitMQ *RabbitMQ

	// Vector search across stored jobs.
	Qdrant *Qdrant

	// Relational persistence for documents, matches and suggestions.
	MySQL *MySQL

	// Embedding cache, upload dedup, locks and rate windows.
	Redis *Redis
}

// NewStorage initializes all configured backends.
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	storage := &Storage{}
	var initErrors []string

	if cfg.MinIO.Endpoint != "" {
		minioClient, err := NewMinIO(&cfg.MinIO)
		if err != nil {
			logger.Warn().Err(err).Msg("MinIO initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			storage.MinIO = minioClient
		}
	}

	if cfg.RabbitMQ.URL != "" {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("RabbitMQ initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else {
			storage.RabbitMQ = mq
		}
	}

	if cfg.Qdrant.Endpoint != "" {
		qdrant, err := NewQdrant(&cfg.Qdrant)
		if err != nil {
			logger.Warn().Err(err).Msg("Qdrant initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("Qdrant: %v", err))
		} else {
			storage.Qdrant = qdrant
		}
	}

	if cfg.MySQL.Host != "" {
		mysql, err := NewMySQL(&cfg.MySQL)
		if err != nil {
			logger.Warn().Err(err).Msg("MySQL initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		} else {
			storage.MySQL = mysql
		}
	}

	if cfg.Redis.Address != "" {
		redisClient, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		} else {
			storage.Redis = redisClient
		}
	}

	if storage.MinIO == nil && storage.RabbitMQ == nil && storage.Qdrant == nil &&
		storage.MySQL == nil && storage.Redis == nil {
		return nil, fmt.Errorf("all storage backends failed to initialize: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		logger.Warn().Str("failures", strings.Join(initErrors, "; ")).Msg("some storage backends unavailable")
	}

	return storage, nil
}

// Close shuts down every open connection.
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close MySQL connection")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
	// MinIO and Qdrant clients hold no long-lived connections needing an
	// explicit close.
}

package receipt

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"eastleigh-be/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKey = "eastleigh:receipt:seq"

// RedisSequencer hands out numbers with INCR. The key is seeded once per
// process with SETNX from the ledger, so an existing key is never rewound.
type RedisSequencer struct {
	client *redis.Client
	db     *sql.DB
	key    string

	mu     sync.Mutex
	seeded atomic.Bool
}

func NewRedisSequencer(client *redis.Client, db *sql.DB) *RedisSequencer {
	return &RedisSequencer{client: client, db: db, key: redisKey}
}

func (s *RedisSequencer) seed(ctx context.Context) error {
	if s.seeded.Load() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded.Load() {
		return nil
	}

	last, err := lastCompleted(ctx, s.db)
	if err != nil {
		return err
	}

	set, err := s.client.SetNX(ctx, s.key, last, 0).Result()
	if err != nil {
		return fmt.Errorf("seed receipt counter: %w", err)
	}
	if set {
		logger.FromCtx(ctx).Info("Seeded receipt counter from ledger", zap.Int64("last_receipt", last))
	}

	s.seeded.Store(true)
	return nil
}

func (s *RedisSequencer) Next(ctx context.Context) (string, error) {
	if err := s.seed(ctx); err != nil {
		return "", err
	}

	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return "", fmt.Errorf("increment receipt counter: %w", err)
	}
	return Format(n), nil
}

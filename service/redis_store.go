package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 基于 Redis 键过期的掩码存储
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	newID  func() string
}

func NewRedisStore(cfg *config.RedisConfig, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg.Prefix, ttl)
}

func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultMaskTTL
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		newID:  utils.NewMaskID,
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) TTL() time.Duration { return s.ttl }

func (s *RedisStore) Put(ctx context.Context, payload []byte) (string, error) {
	id := s.newID()
	if err := s.client.Set(ctx, s.prefix+id, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store mask: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, newError(KindNotFound, "store.get", "mask not found or expired", nil)
		}
		utils.Logger.Error("failed to read mask from redis",
			zap.String("mask_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to read mask: %w", err)
	}
	return data, nil
}

// Evict Redis 自行处理过期，这里无需扫描
func (s *RedisStore) Evict(context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count masks: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

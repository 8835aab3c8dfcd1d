package service

import (
	"context"
	"errors"
	"time"

	"github.com/TIANLI0/D2Nodes/config"
	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "d2:node:"

// RedisService 缓存纯函数节点的执行结果
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetResult 从缓存获取节点结果，未命中时返回 nil
func (s *RedisService) GetResult(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, resultKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}
	return data, nil
}

// SetResult 写入节点结果
func (s *RedisService) SetResult(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, resultKeyPrefix+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

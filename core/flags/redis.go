package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FocusFM/logger"

	"github.com/go-redis/redis/v8"
)

// RedisClient RedisStore 使用的命令子集，*redis.Client 满足
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisStore 开关保存为 JSON 字符串，变更通过 pub/sub 广播给所有实例
type RedisStore struct {
	client RedisClient
	key    string
}

func NewRedisStore(client RedisClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) channel() string {
	return s.key + ":changed"
}

func (s *RedisStore) Load(ctx context.Context) (Flags, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default(), nil
	}
	if err != nil {
		return Flags{}, fmt.Errorf("get flags %s: %w", s.key, err)
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, f Flags) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set flags %s: %w", s.key, err)
	}
	// 通知失败不影响已写入的值
	if err := s.client.Publish(ctx, s.channel(), data).Err(); err != nil {
		logger.Warn("publish flags change failed", logger.String("channel", s.channel()), logger.ErrorField(err))
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	// 等待订阅确认
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel(), err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				notify(ch)
			}
		}
	}()
	return ch, nil
}

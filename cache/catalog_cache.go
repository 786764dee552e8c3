package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FocusFM/core/catalog"
	"FocusFM/logger"
	"FocusFM/model"

	"github.com/go-redis/redis/v8"
)

// KV 目录缓存用到的 Redis 命令，*redis.Client 满足
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CatalogCache 把解析好的歌曲目录缓存到 Redis
//
// MinIO 目录每次都要读索引并逐首签名，多个进程共享一份结果即可。
// TTL 必须短于预签名有效期，否则会下发过期的 URL。
type CatalogCache struct {
	kv  KV
	src catalog.Catalog
	key string
	ttl time.Duration
}

// GetCatalogKey 根据前缀生成目录缓存的Redis键
func GetCatalogKey(prefix string) string {
	return fmt.Sprintf("%s:catalog", prefix)
}

// NewCatalogCache 包装一个目录来源
func NewCatalogCache(kv KV, src catalog.Catalog, key string, ttl time.Duration) *CatalogCache {
	return &CatalogCache{kv: kv, src: src, key: key, ttl: ttl}
}

// Songs 优先读缓存，未命中时读取来源并回填
func (c *CatalogCache) Songs(ctx context.Context) ([]model.Song, error) {
	data, err := c.kv.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var songs []model.Song
		if err := json.Unmarshal(data, &songs); err == nil && len(songs) > 0 {
			return songs, nil
		}
		logger.Warn("discarding malformed catalog cache", logger.String("key", c.key))
	case !errors.Is(err, redis.Nil):
		// Redis 故障时直接回源
		logger.Warn("catalog cache unavailable", logger.String("key", c.key), logger.ErrorField(err))
	}

	songs, err := c.src.Songs(ctx)
	if err != nil {
		return nil, err
	}

	songsJSON, err := json.Marshal(songs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := c.kv.Set(ctx, c.key, songsJSON, c.ttl).Err(); err != nil {
		logger.Warn("failed to cache catalog", logger.String("key", c.key), logger.ErrorField(err))
	}
	return songs, nil
}

// Invalidate 删除缓存，下次读取时回源
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.kv.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to clear catalog cache: %w", err)
	}
	return nil
}

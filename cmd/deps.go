package cmd

import (
	"context"
	"fmt"

	"FocusFM/cache"
	"FocusFM/core/catalog"
	"FocusFM/core/flags"
	"FocusFM/storage"

	"github.com/minio/minio-go/v7"
)

// openFlagsStore 按配置选择开关存储，返回的函数释放底层连接
func openFlagsStore(ctx context.Context) (flags.Store, func(), error) {
	switch cfg.FlagsBackend {
	case "", "file":
		return flags.NewFileStore(cfg.FlagsFile), func() {}, nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return flags.NewRedisStore(client, cfg.FlagsKey), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown flags backend %q", cfg.FlagsBackend)
	}
}

// openCatalog 按配置选择歌曲目录；使用 MinIO 时同时返回客户端
func openCatalog(ctx context.Context) (catalog.Catalog, *minio.Client, error) {
	switch cfg.CatalogSource {
	case "", "file":
		return catalog.NewFileCatalog(cfg.CatalogFile), nil, nil
	case "minio":
		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		bucket := catalog.NewMinioBucket(client, cfg.MinioBucket)
		var cat catalog.Catalog = catalog.NewMinioCatalog(bucket, cfg.CatalogObject, cfg.PresignExpiry)
		if cfg.CatalogCache {
			rdb, err := cache.NewRedisClient(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			// 缓存在签名过期前失效
			cat = cache.NewCatalogCache(rdb, cat, cache.GetCatalogKey("focusfm"), cfg.PresignExpiry/2)
		}
		return cat, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cfg.CatalogSource)
	}
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"FocusFM/model"
	"FocusFM/storage"

	"github.com/minio/minio-go/v7"
)

// Bucket 目录使用的对象存储能力
type Bucket interface {
	ReadObject(ctx context.Context, name string) ([]byte, error)
	Presign(ctx context.Context, name string, expiry time.Duration) (string, error)
	ListAudio(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// MinioBucket 基于 minio-go 的 Bucket 实现
type MinioBucket struct {
	client *minio.Client
	bucket string
}

// NewMinioBucket 包装 MinIO 客户端
func NewMinioBucket(client *minio.Client, bucket string) *MinioBucket {
	return &MinioBucket{client: client, bucket: bucket}
}

func (b *MinioBucket) ReadObject(ctx context.Context, name string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, nil
}

func (b *MinioBucket) Presign(ctx context.Context, name string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, name, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", name, err)
	}
	return u.String(), nil
}

func (b *MinioBucket) ListAudio(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	objects, _, err := storage.ListAudioObjects(ctx, b.client, b.bucket, prefix)
	return objects, err
}

// MinioCatalog 从存储桶读取目录：优先读取索引对象，索引不存在时扫描前缀下的音频文件。
// 歌曲 URL 为带有效期的预签名地址。
type MinioCatalog struct {
	bucket Bucket
	index  string
	prefix string
	expiry time.Duration
}

// NewMinioCatalog 创建 MinIO 目录
func NewMinioCatalog(b Bucket, index string, expiry time.Duration) *MinioCatalog {
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &MinioCatalog{
		bucket: b,
		index:  index,
		prefix: "songs/",
		expiry: expiry,
	}
}

func (c *MinioCatalog) Songs(ctx context.Context) ([]model.Song, error) {
	songs, err := c.readIndex(ctx)
	if errors.Is(err, ErrObjectNotFound) {
		songs, err = c.scan(ctx)
	}
	if err != nil {
		return nil, err
	}

	for i := range songs {
		if songs[i].Object == "" {
			if songs[i].URL == "" {
				return nil, fmt.Errorf("song %q has neither url nor object", songs[i].Title)
			}
			continue
		}
		u, err := c.bucket.Presign(ctx, songs[i].Object, c.expiry)
		if err != nil {
			return nil, err
		}
		songs[i].URL = u
	}
	return songs, nil
}

func (c *MinioCatalog) readIndex(ctx context.Context) ([]model.Song, error) {
	data, err := c.bucket.ReadObject(ctx, c.index)
	if err != nil {
		return nil, err
	}
	songs, err := parseSongs(data)
	if err != nil {
		return nil, fmt.Errorf("catalog index %s: %w", c.index, err)
	}
	return songs, nil
}

func (c *MinioCatalog) scan(ctx context.Context) ([]model.Song, error) {
	objects, err := c.bucket.ListAudio(ctx, c.prefix)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, ErrEmpty
	}

	songs := make([]model.Song, 0, len(objects))
	for _, o := range objects {
		songs = append(songs, model.Song{Title: titleFromKey(o.Key), Object: o.Key})
	}
	return songs, nil
}

// titleFromKey songs/deep-focus_01.mp3 -> "deep focus 01"
func titleFromKey(key string) string {
	name := strings.TrimSuffix(path.Base(key), path.Ext(key))
	return strings.NewReplacer("-", " ", "_", " ").Replace(name)
}

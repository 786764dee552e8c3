package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"FocusFM/model"
)

var (
	// ErrEmpty 目录中没有任何可播放的歌曲
	ErrEmpty = errors.New("catalog is empty")
	// ErrObjectNotFound 目录索引对象不存在
	ErrObjectNotFound = errors.New("catalog object not found")
)

// Catalog 歌曲目录
type Catalog interface {
	Songs(ctx context.Context) ([]model.Song, error)
}

// FileCatalog 从本地 songs.json 读取歌曲目录
type FileCatalog struct {
	path string
}

// NewFileCatalog 创建本地文件目录
func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

func (c *FileCatalog) Songs(ctx context.Context) ([]model.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", c.path, err)
	}
	songs, err := parseSongs(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", c.path, err)
	}
	for _, s := range songs {
		if s.URL == "" {
			return nil, fmt.Errorf("catalog %s: song %q has no url", c.path, s.Title)
		}
	}
	return songs, nil
}

func parseSongs(data []byte) ([]model.Song, error) {
	var songs []model.Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, fmt.Errorf("decode songs: %w", err)
	}
	if len(songs) == 0 {
		return nil, ErrEmpty
	}
	return songs, nil
}

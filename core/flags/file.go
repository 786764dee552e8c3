package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"FocusFM/logger"

	"github.com/fsnotify/fsnotify"
)

// FileStore 以 JSON 文件保存开关，通过 fsnotify 感知外部修改
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load 文件不存在时返回默认值
func (s *FileStore) Load(ctx context.Context) (Flags, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Flags{}, fmt.Errorf("read flags %s: %w", s.path, err)
	}
	return decode(data)
}

// Save 先写临时文件再改名，读取方不会看到写了一半的内容
func (s *FileStore) Save(ctx context.Context, f Flags) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create flags dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".flags-*.json")
	if err != nil {
		return fmt.Errorf("create temp flags: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write flags: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write flags: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace flags %s: %w", s.path, err)
	}
	return nil
}

// Watch 监听所在目录，文件可能被整体替换
func (s *FileStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create flags dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					notify(ch)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("flags watcher error", logger.ErrorField(err))
			}
		}
	}()
	return ch, nil
}

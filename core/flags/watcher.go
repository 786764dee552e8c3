package flags

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"FocusFM/logger"

	"go.uber.org/zap"
)

// Watcher 持有当前开关快照。消费方拿到的是指针，存储变化时整体替换，从不原地修改。
type Watcher struct {
	store   Store
	current atomic.Pointer[Flags]
	log     *zap.Logger

	mu        sync.Mutex
	listeners []func(*Flags)
}

// NewWatcher 读取初始值
func NewWatcher(ctx context.Context, store Store) (*Watcher, error) {
	f, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load initial flags: %w", err)
	}
	w := &Watcher{
		store: store,
		log:   logger.Named("flags"),
	}
	w.current.Store(&f)
	return w, nil
}

// Current 当前快照
func (w *Watcher) Current() *Flags {
	return w.current.Load()
}

// Disabled 当前时刻是否停用
func (w *Watcher) Disabled(now time.Time) bool {
	return w.Current().Effective(now)
}

// OnChange 注册变更回调。回调在触发变更的 goroutine 中执行：
// 存储通知来自 Run，直接写入来自 Update 的调用方（例如 HTTP 请求）。
func (w *Watcher) OnChange(fn func(*Flags)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Update 写入存储并立即替换快照
func (w *Watcher) Update(ctx context.Context, f Flags) error {
	if err := w.store.Save(ctx, f); err != nil {
		return err
	}
	w.swap(f)
	return nil
}

// Run 每次收到变更通知重新读取存储，直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	changes, err := w.store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch flags: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			f, err := w.store.Load(ctx)
			if err != nil {
				// 保留旧快照
				w.log.Warn("reload flags failed", zap.Error(err))
				continue
			}
			w.swap(f)
		}
	}
}

func (w *Watcher) swap(f Flags) {
	if old := w.current.Load(); old != nil && *old == f {
		return
	}
	w.current.Store(&f)
	w.log.Info("flags changed",
		zap.Bool("isDisabled", f.Disabled),
		zap.Bool("isDisabledOnWeekend", f.DisabledOnWeekend))

	w.mu.Lock()
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(&f)
	}
}

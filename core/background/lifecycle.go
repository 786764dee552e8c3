package background

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"FocusFM/core/host"
	"FocusFM/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrCreateFailed 离屏文档创建失败，不会自动重试
var ErrCreateFailed = errors.New("failed to create offscreen document")

// OffscreenHost 生命周期管理器依赖的宿主能力
type OffscreenHost interface {
	GetContexts(ctx context.Context, url string) ([]host.ContextInfo, error)
	CreateDocument(ctx context.Context, p host.CreateParams) error
}

// Lifecycle 保证在路由任何命令之前恰好存在一个离屏文档
//
// present 只是对宿主真实状态的尽力缓存；宿主才是最终权威。
type Lifecycle struct {
	host   OffscreenHost
	params host.CreateParams
	group  singleflight.Group
	log    *zap.Logger

	mu      sync.Mutex
	present bool
	ready   chan struct{} // 新建文档尚未宣告就绪时非 nil
}

// NewLifecycle 创建生命周期管理器，启动时假定文档不存在
func NewLifecycle(h OffscreenHost, params host.CreateParams) *Lifecycle {
	return &Lifecycle{
		host:   h,
		params: params,
		log:    logger.Named("background").With(zap.String("component", "lifecycle")),
	}
}

// EnsureReady 幂等，可以在每条命令之前调用。
// 并发调用合并为一次创建；新建的文档要等到宣告就绪后才返回。
func (l *Lifecycle) EnsureReady(ctx context.Context) error {
	l.mu.Lock()
	fast := l.present && l.ready == nil
	l.mu.Unlock()
	if fast {
		return nil
	}

	// 创建过程不受单个调用方取消的影响
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(l.params.URL, func() (interface{}, error) {
		return nil, l.materialize(shared)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return l.awaitReady(ctx)
}

// materialize 先查询宿主中已存在的文档，没有再创建
func (l *Lifecycle) materialize(ctx context.Context) error {
	l.mu.Lock()
	if l.present {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	contexts, err := l.host.GetContexts(ctx, l.params.URL)
	if err != nil {
		return fmt.Errorf("query offscreen contexts: %w", err)
	}
	if len(contexts) > 0 {
		// 后台重启后内存句柄丢失，但文档仍然存活
		l.mu.Lock()
		l.present = true
		l.mu.Unlock()
		l.log.Info("found existing offscreen document", zap.String("url", l.params.URL))
		return nil
	}

	ready := make(chan struct{})
	l.mu.Lock()
	l.ready = ready
	l.mu.Unlock()

	if err := l.host.CreateDocument(ctx, l.params); err != nil {
		l.mu.Lock()
		if l.ready == ready {
			l.ready = nil
		}
		l.mu.Unlock()
		l.log.Error("create offscreen document failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	l.mu.Lock()
	l.present = true
	l.mu.Unlock()
	l.log.Info("created offscreen document", zap.String("url", l.params.URL))
	return nil
}

func (l *Lifecycle) awaitReady(ctx context.Context) error {
	l.mu.Lock()
	ready := l.ready
	l.mu.Unlock()
	if ready == nil {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exists 校验文档是否存在，但不会为此创建文档
func (l *Lifecycle) Exists(ctx context.Context) (bool, error) {
	if l.Present() {
		return true, nil
	}

	contexts, err := l.host.GetContexts(ctx, l.params.URL)
	if err != nil {
		return false, fmt.Errorf("query offscreen contexts: %w", err)
	}
	if len(contexts) == 0 {
		return false, nil
	}
	l.mu.Lock()
	l.present = true
	l.mu.Unlock()
	return true, nil
}

// NotifyReady 收到 OFFSCREEN_READY，放行等待中的调用方
func (l *Lifecycle) NotifyReady() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready != nil {
		close(l.ready)
		l.ready = nil
	}
}

// Invalidate 文档已被销毁（或缓存被证明过期）
func (l *Lifecycle) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.present = false
	// 就绪前被销毁：放行等待者，后续发送失败会触发重建
	if l.ready != nil {
		close(l.ready)
		l.ready = nil
	}
}

// Present 当前缓存的存在状态
func (l *Lifecycle) Present() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.present
}

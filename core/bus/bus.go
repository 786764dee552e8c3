package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"FocusFM/core/protocol"
	"FocusFM/logger"

	"github.com/google/uuid"
)

// ErrNoReceiver 目标角色没有任何已注册的接收方
var ErrNoReceiver = errors.New("could not establish connection: receiving end does not exist")

// Handler 消息处理函数。返回 nil 表示不应答（例如纯事件监听）。
type Handler func(ctx context.Context, msg *protocol.Message) *protocol.Ack

// Endpoint 一个执行上下文在总线上的注册项
type Endpoint struct {
	ID      string
	Role    protocol.Role
	handler Handler
}

// Bus 扩展宿主的消息投递层
//
// 按 target 角色投递；每次投递在独立 goroutine 中执行，不同消息之间不保证顺序。
type Bus struct {
	mu        sync.RWMutex
	endpoints map[protocol.Role]map[string]*Endpoint
}

// New 创建消息总线
func New() *Bus {
	return &Bus{
		endpoints: make(map[protocol.Role]map[string]*Endpoint),
	}
}

// Register 以指定角色注册处理函数
func (b *Bus) Register(role protocol.Role, handler Handler) *Endpoint {
	ep := &Endpoint{
		ID:      uuid.NewString(),
		Role:    role,
		handler: handler,
	}

	b.mu.Lock()
	if b.endpoints[role] == nil {
		b.endpoints[role] = make(map[string]*Endpoint)
	}
	b.endpoints[role][ep.ID] = ep
	count := len(b.endpoints[role])
	b.mu.Unlock()

	logger.Debug("endpoint registered",
		logger.String("role", string(role)),
		logger.String("id", ep.ID),
		logger.Int("count", count))
	return ep
}

// Unregister 注销，重复调用无副作用
func (b *Bus) Unregister(ep *Endpoint) {
	if ep == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if eps, ok := b.endpoints[ep.Role]; ok {
		delete(eps, ep.ID)
		if len(eps) == 0 {
			delete(b.endpoints, ep.Role)
		}
	}
}

// Receivers 返回某个角色当前的接收方数量
func (b *Bus) Receivers(role protocol.Role) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints[role])
}

// snapshot 复制接收方列表，避免投递期间持有锁
func (b *Bus) snapshot(role protocol.Role) []*Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	eps := b.endpoints[role]
	out := make([]*Endpoint, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep)
	}
	return out
}

// Send 投递消息并等待第一个非空应答。
// 所有接收方都不应答时返回 (nil, nil)；只有 ctx 能结束等待。
func (b *Bus) Send(ctx context.Context, msg *protocol.Message) (*protocol.Ack, error) {
	receivers := b.snapshot(msg.Target)
	if len(receivers) == 0 {
		return nil, fmt.Errorf("send %s: %w", msg, ErrNoReceiver)
	}

	// 接收方的处理不随发送方的取消而中断
	deliverCtx := context.WithoutCancel(ctx)
	acks := make(chan *protocol.Ack, len(receivers))
	for _, ep := range receivers {
		go func(ep *Endpoint) {
			acks <- ep.handler(deliverCtx, msg)
		}(ep)
	}

	for range receivers {
		select {
		case ack := <-acks:
			if ack != nil {
				return ack, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

// Post 投递消息但不等待应答（fire-and-forget）
func (b *Bus) Post(ctx context.Context, msg *protocol.Message) error {
	receivers := b.snapshot(msg.Target)
	if len(receivers) == 0 {
		return fmt.Errorf("post %s: %w", msg, ErrNoReceiver)
	}

	deliverCtx := context.WithoutCancel(ctx)
	for _, ep := range receivers {
		go ep.handler(deliverCtx, msg)
	}
	return nil
}

package background

import (
	"context"
	"errors"
	"sync"

	"FocusFM/core/bus"
	"FocusFM/core/protocol"
	"FocusFM/logger"

	"go.uber.org/zap"
)

// Messenger 后台路由器使用的总线能力
type Messenger interface {
	Register(role protocol.Role, handler bus.Handler) *bus.Endpoint
	Unregister(ep *bus.Endpoint)
	Send(ctx context.Context, msg *protocol.Message) (*protocol.Ack, error)
	Post(ctx context.Context, msg *protocol.Message) error
}

// Router 后台路由器：所有消息的唯一入口
//
// 不独立跟踪播放状态，状态完全以离屏控制器为准。
type Router struct {
	bus           Messenger
	life          *Lifecycle
	defaultVolume float64
	log           *zap.Logger

	// 出站命令串行化：上一条转发完成前不接受下一条
	outMu sync.Mutex

	mu sync.Mutex
	ep *bus.Endpoint
}

// NewRouter 创建后台路由器
func NewRouter(b Messenger, life *Lifecycle, defaultVolume float64) *Router {
	if defaultVolume <= 0 || defaultVolume > 1 {
		defaultVolume = protocol.DefaultVolume
	}
	return &Router{
		bus:           b,
		life:          life,
		defaultVolume: defaultVolume,
		log:           logger.Named("background"),
	}
}

// Start 以 background 角色注册到总线
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ep == nil {
		r.ep = r.bus.Register(protocol.RoleBackground, r.Handle)
	}
}

// Stop 从总线注销
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bus.Unregister(r.ep)
	r.ep = nil
}

// Lifecycle 返回离屏文档生命周期管理器
func (r *Router) Lifecycle() *Lifecycle {
	return r.life
}

// Handle 按 (target, source, type) 分发
func (r *Router) Handle(ctx context.Context, msg *protocol.Message) *protocol.Ack {
	if msg.Target != protocol.RoleBackground {
		return nil
	}

	switch {
	case msg.Source == protocol.RolePopup:
		return r.handlePopup(ctx, msg)

	case msg.Type == protocol.TypeOffscreenReady:
		r.log.Debug("offscreen document ready")
		r.life.NotifyReady()
		return nil

	case msg.Type == protocol.TypeDocumentClosed:
		r.handleDocumentClosed(ctx, msg)
		return nil

	case msg.Source == protocol.RoleOffscreen && msg.IsStateEvent():
		r.relay(ctx, msg)
		return nil
	}

	// 其它扩展消息只经过、不解释
	return nil
}

// handlePopup 命令路径与查询路径
func (r *Router) handlePopup(ctx context.Context, msg *protocol.Message) *protocol.Ack {
	if err := protocol.Validate(msg); err != nil {
		r.log.Warn("invalid popup message", zap.Stringer("msg", msg), zap.Error(err))
		return protocol.Fail(err)
	}

	var cmd *protocol.Message
	switch msg.Type {
	case protocol.TypePlay:
		volume := r.defaultVolume
		if msg.Volume != nil && *msg.Volume > 0 {
			volume = *msg.Volume
		}
		cmd = &protocol.Message{
			Type:   protocol.TypePlay,
			URL:    msg.URL,
			Volume: protocol.Float(volume),
		}
	case protocol.TypePause:
		cmd = &protocol.Message{Type: protocol.TypePause}
	case protocol.TypeLoop:
		cmd = &protocol.Message{Type: protocol.TypeLoop, Enabled: protocol.Bool(*msg.Enabled)}
	case protocol.TypeGetAudioState:
		return r.query(ctx)
	default:
		r.log.Warn("unknown popup command", zap.String("type", string(msg.Type)))
		return protocol.Fail(protocol.UnknownType(msg.Type))
	}

	cmd.Target = protocol.RoleOffscreen
	cmd.Source = protocol.RoleBackground

	r.outMu.Lock()
	defer r.outMu.Unlock()
	return r.forward(ctx, cmd)
}

// forward 确保文档存在后转发命令。缓存认为存在但投递失败时，作废缓存并重试一次。
// 成功与否只取决于投递本身，播放是否真正开始由后续状态事件确认。
func (r *Router) forward(ctx context.Context, cmd *protocol.Message) *protocol.Ack {
	for attempt := 0; ; attempt++ {
		if err := r.life.EnsureReady(ctx); err != nil {
			r.log.Error("offscreen document unavailable", zap.Stringer("cmd", cmd), zap.Error(err))
			return protocol.Fail(err)
		}

		ack, err := r.bus.Send(ctx, cmd)
		if errors.Is(err, bus.ErrNoReceiver) && attempt == 0 {
			r.log.Warn("offscreen handle was stale, re-verifying", zap.Stringer("cmd", cmd))
			r.life.Invalidate()
			continue
		}
		if err != nil {
			r.log.Error("forward command failed", zap.Stringer("cmd", cmd), zap.Error(err))
			return protocol.Fail(err)
		}
		if ack != nil && !ack.Success {
			r.log.Warn("offscreen rejected command",
				zap.Stringer("cmd", cmd),
				zap.String("error", ack.Error))
		}
		return protocol.OK()
	}
}

// query 把 GET_AUDIO_STATE 翻译成发往离屏文档的 GET_STATE；
// 文档不存在时直接合成“暂停/无音源”，不为一次查询创建文档。
func (r *Router) query(ctx context.Context) *protocol.Ack {
	r.outMu.Lock()
	defer r.outMu.Unlock()

	exists, err := r.life.Exists(ctx)
	if err != nil {
		r.log.Error("verify offscreen document failed", zap.Error(err))
		return protocol.Fail(err)
	}
	if exists {
		if err := r.life.EnsureReady(ctx); err != nil {
			return protocol.Fail(err)
		}
		cmd := &protocol.Message{
			Target: protocol.RoleOffscreen,
			Source: protocol.RoleBackground,
			Type:   protocol.TypeGetState,
		}
		_, err := r.bus.Send(ctx, cmd)
		if err == nil {
			return protocol.OK()
		}
		if !errors.Is(err, bus.ErrNoReceiver) {
			return protocol.Fail(err)
		}
		r.life.Invalidate()
	}

	r.toPopup(ctx, protocol.IdleEvent())
	return protocol.OK()
}

// relay 把离屏状态事件原样转给弹窗，只改写路由字段
func (r *Router) relay(ctx context.Context, msg *protocol.Message) {
	r.toPopup(ctx, msg.Readdress(protocol.RoleBackground, protocol.RolePopup))
}

func (r *Router) toPopup(ctx context.Context, msg *protocol.Message) {
	err := r.bus.Post(ctx, msg)
	switch {
	case errors.Is(err, bus.ErrNoReceiver):
		r.log.Debug("no popup open, event dropped", zap.String("type", string(msg.Type)))
	case err != nil:
		r.log.Warn("relay to popup failed", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

// handleDocumentClosed 宿主销毁了离屏文档。正在播放时立即重建通道，音频本身无法恢复。
func (r *Router) handleDocumentClosed(ctx context.Context, msg *protocol.Message) {
	r.life.Invalidate()
	r.log.Info("offscreen document closed", zap.Bool("isPlaying", msg.IsPlaying))
	if !msg.IsPlaying {
		return
	}
	if err := r.life.EnsureReady(ctx); err != nil {
		r.log.Error("recreate offscreen document failed", zap.Error(err))
	}
}

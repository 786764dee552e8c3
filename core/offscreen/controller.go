package offscreen

import (
	"context"
	"fmt"
	"sync"

	"FocusFM/core/audio"
	"FocusFM/core/bus"
	"FocusFM/core/protocol"
	"FocusFM/logger"

	"go.uber.org/zap"
)

// Messenger 离屏文档与总线交互所需的能力
type Messenger interface {
	Register(role protocol.Role, handler bus.Handler) *bus.Endpoint
	Unregister(ep *bus.Endpoint)
	Post(ctx context.Context, msg *protocol.Message) error
}

// Controller 离屏控制器：独占音频会话，把命令翻译为会话操作，并把会话事件主动上报给后台
type Controller struct {
	bus     Messenger
	session audio.Session
	url     string
	log     *zap.Logger

	// 命令串行执行
	mu sync.Mutex
	ep *bus.Endpoint
}

// NewController 创建离屏控制器
func NewController(b Messenger, session audio.Session, documentURL string) *Controller {
	return &Controller{
		bus:     b,
		session: session,
		url:     documentURL,
		log:     logger.Named("offscreen"),
	}
}

// Start 注册到总线、订阅会话事件并宣告就绪
func (c *Controller) Start(ctx context.Context) error {
	c.session.OnEvent(c.onSessionEvent)

	c.mu.Lock()
	c.ep = c.bus.Register(protocol.RoleOffscreen, c.Handle)
	c.mu.Unlock()

	ready := &protocol.Message{
		Target: protocol.RoleBackground,
		Source: protocol.RoleOffscreen,
		Type:   protocol.TypeOffscreenReady,
	}
	if err := c.bus.Post(ctx, ready); err != nil {
		// 就绪通知丢失是可以容忍的
		c.log.Warn("announce readiness failed", zap.Error(err))
	}
	c.log.Info("offscreen document started", zap.String("url", c.url))
	return nil
}

// Close 注销并释放音频资源，返回销毁前是否正在播放
func (c *Controller) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPlaying := !c.session.Snapshot().Paused
	c.bus.Unregister(c.ep)
	c.ep = nil
	if err := c.session.Close(); err != nil {
		c.log.Warn("close audio session failed", zap.Error(err))
	}
	c.log.Info("offscreen document closed", zap.Bool("wasPlaying", wasPlaying))
	return wasPlaying
}

// State 当前权威播放状态
func (c *Controller) State() protocol.PlaybackState {
	return toPlaybackState(c.session.Snapshot())
}

// Handle 处理发往离屏文档的命令
func (c *Controller) Handle(ctx context.Context, msg *protocol.Message) *protocol.Ack {
	if msg.Target != protocol.RoleOffscreen {
		return nil
	}
	if !msg.IsCommand() {
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
		return protocol.Fail(protocol.UnknownType(msg.Type))
	}
	if err := protocol.Validate(msg); err != nil {
		c.log.Warn("invalid command", zap.Stringer("msg", msg), zap.Error(err))
		return protocol.Fail(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case protocol.TypePlay:
		c.session.Load(msg.URL)
		c.session.SetVolume(msg.VolumeOrDefault())
		// 每次 play 都强制开启循环，之后的 loop 命令可以覆盖
		// TODO: decide whether explicit loop-off should survive a later play
		c.session.SetLoop(true)
		if err := c.session.Play(ctx); err != nil {
			c.log.Warn("play failed", zap.String("url", msg.URL), zap.Error(err))
			return protocol.Fail(fmt.Errorf("play %s: %w", msg.URL, err))
		}
		c.log.Debug("playing audio", zap.String("url", msg.URL))
		return protocol.OK()

	case protocol.TypePause:
		c.session.Pause()
		return protocol.OK()

	case protocol.TypeLoop:
		c.session.SetLoop(*msg.Enabled)
		c.log.Debug("loop mode", zap.Bool("enabled", *msg.Enabled))
		return protocol.OK()
	}

	// GET_STATE：以事件形式回报，不改变任何状态
	snap := c.session.Snapshot()
	ev := toPlaybackState(snap).Event()
	ev.Offscreen = true
	ev.Loop = protocol.Bool(snap.Loop)
	if err := c.bus.Post(ctx, ev); err != nil {
		c.log.Warn("report state failed", zap.Error(err))
	}
	return protocol.OK()
}

// onSessionEvent 把原生事件翻译成状态事件，与任何命令无关
func (c *Controller) onSessionEvent(ev audio.Event, snap audio.State) {
	var typ protocol.MessageType
	switch ev {
	case audio.EventPlay:
		typ = protocol.TypeAudioPlaying
	case audio.EventPause:
		typ = protocol.TypeAudioPaused
	case audio.EventEnded:
		typ = protocol.TypeAudioEnded
	default:
		return
	}

	msg := &protocol.Message{
		Target: protocol.RoleBackground,
		Source: protocol.RoleOffscreen,
		Type:   typ,
		URL:    snap.Source,
	}
	if err := c.bus.Post(context.Background(), msg); err != nil {
		c.log.Warn("emit state event failed", zap.String("type", string(typ)), zap.Error(err))
	}
}

func toPlaybackState(s audio.State) protocol.PlaybackState {
	st := protocol.PlaybackState{
		SourceURL: s.Source,
		Status:    protocol.StatusPaused,
		Loop:      s.Loop,
	}
	if s.Source != "" && !s.Paused {
		st.Status = protocol.StatusPlaying
	}
	return st
}

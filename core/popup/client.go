package popup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"FocusFM/core/catalog"
	"FocusFM/core/protocol"
	"FocusFM/logger"

	"go.uber.org/zap"
)

// ErrNoSong 没有可播放的歌曲
var ErrNoSong = errors.New("no song selected")

// Sender 把弹窗命令交给后台并返回投递结果
type Sender interface {
	Send(ctx context.Context, msg *protocol.Message) (*protocol.Ack, error)
}

// View 弹窗渲染用的最近已知状态，可能落后于真实状态
type View struct {
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Playing  bool   `json:"playing"`
	Loop     bool   `json:"loop"`
	Autoplay bool   `json:"autoplay"`
	// Confirmed 最近一次变化是否已被状态事件确认
	Confirmed bool `json:"confirmed"`
}

// Client 弹窗客户端：没有持久身份，每次打开都要重新查询状态
type Client struct {
	sender   Sender
	playlist *catalog.Playlist
	volume   *float64
	log      *zap.Logger

	mu       sync.Mutex
	view     View
	onChange func(View)
}

// Option 客户端选项
type Option func(*Client)

// WithPlaylist 启用上一首/下一首和自动连播
func WithPlaylist(p *catalog.Playlist) Option {
	return func(c *Client) { c.playlist = p }
}

// WithVolume 随 play 命令发送的音量
func WithVolume(v float64) Option {
	return func(c *Client) { c.volume = protocol.Float(v) }
}

// NewClient 创建弹窗客户端，自动连播默认开启
func NewClient(sender Sender, opts ...Option) *Client {
	c := &Client{
		sender: sender,
		log:    logger.Named("popup"),
		view:   View{Autoplay: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.playlist != nil {
		song := c.playlist.Current()
		c.view.URL, c.view.Title = song.URL, song.Title
	}
	return c
}

// OnChange 视图变化回调
func (c *Client) OnChange(fn func(View)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// View 当前视图
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Activate 弹窗打开时查询当前状态，结果以状态事件的形式异步到达
func (c *Client) Activate(ctx context.Context) error {
	return c.send(ctx, &protocol.Message{Type: protocol.TypeGetAudioState})
}

// Play 乐观更新视图后发送 play
func (c *Client) Play(ctx context.Context, url string) error {
	if url == "" {
		return ErrNoSong
	}
	prev := c.update(func(v *View) {
		v.URL, v.Title = url, c.titleOf(url)
		v.Playing = true
		v.Confirmed = false
	})
	err := c.send(ctx, &protocol.Message{Type: protocol.TypePlay, URL: url, Volume: c.volume})
	if err != nil {
		c.restore(prev)
	}
	return err
}

// Pause 暂停
func (c *Client) Pause(ctx context.Context) error {
	prev := c.update(func(v *View) {
		v.Playing = false
		v.Confirmed = false
	})
	err := c.send(ctx, &protocol.Message{Type: protocol.TypePause})
	if err != nil {
		c.restore(prev)
	}
	return err
}

// TogglePlay 播放/暂停切换
func (c *Client) TogglePlay(ctx context.Context) error {
	v := c.View()
	if v.Playing {
		return c.Pause(ctx)
	}
	return c.Play(ctx, v.URL)
}

// SetLoop 切换单曲循环
func (c *Client) SetLoop(ctx context.Context, enabled bool) error {
	prev := c.update(func(v *View) { v.Loop = enabled })
	err := c.send(ctx, &protocol.Message{Type: protocol.TypeLoop, Enabled: protocol.Bool(enabled)})
	if err != nil {
		c.restore(prev)
	}
	return err
}

// SetAutoplay 本地开关，不发往后台
func (c *Client) SetAutoplay(enabled bool) {
	c.update(func(v *View) { v.Autoplay = enabled })
}

// Next 下一首并开始播放
func (c *Client) Next(ctx context.Context) error {
	if c.playlist == nil {
		return ErrNoSong
	}
	return c.Play(ctx, c.playlist.Next().URL)
}

// Prev 上一首并开始播放
func (c *Client) Prev(ctx context.Context) error {
	if c.playlist == nil {
		return ErrNoSong
	}
	return c.Play(ctx, c.playlist.Prev().URL)
}

// Handle 处理后台转发的状态事件
func (c *Client) Handle(ctx context.Context, msg *protocol.Message) *protocol.Ack {
	if msg.Target != protocol.RolePopup || !msg.IsStateEvent() {
		return nil
	}

	var advance bool
	c.update(func(v *View) {
		switch msg.Type {
		case protocol.TypeAudioPlaying:
			v.URL, v.Title = msg.URL, c.titleOf(msg.URL)
			v.Playing = true
		case protocol.TypeAudioPaused:
			if msg.URL != "" {
				v.URL, v.Title = msg.URL, c.titleOf(msg.URL)
			}
			v.Playing = false
		case protocol.TypeAudioEnded:
			v.Playing = false
			advance = v.Autoplay && !v.Loop && c.playlist != nil
		}
		if msg.Loop != nil {
			v.Loop = *msg.Loop
		}
		v.Confirmed = true
	})
	if msg.URL != "" && c.playlist != nil {
		c.playlist.Seek(msg.URL)
	}

	if advance {
		// 事件可能在传输层的读循环里处理，命令必须另起 goroutine 发送
		go func() {
			if err := c.Next(context.WithoutCancel(ctx)); err != nil {
				c.log.Warn("autoplay next failed", zap.Error(err))
			}
		}()
	}
	return nil
}

func (c *Client) send(ctx context.Context, msg *protocol.Message) error {
	msg.Target = protocol.RoleBackground
	msg.Source = protocol.RolePopup

	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()

	ack, err := sender.Send(ctx, msg)
	if err != nil {
		c.log.Warn("send command failed", zap.Stringer("msg", msg), zap.Error(err))
		return fmt.Errorf("%s: %w", msg.Type, err)
	}
	if ack != nil && !ack.Success {
		return fmt.Errorf("%s rejected: %s", msg.Type, ack.Error)
	}
	return nil
}

// update 修改视图并通知，返回修改前的视图
func (c *Client) update(fn func(v *View)) View {
	c.mu.Lock()
	prev := c.view
	fn(&c.view)
	next, notify := c.view, c.onChange
	c.mu.Unlock()

	if notify != nil && next != prev {
		notify(next)
	}
	return prev
}

// restore 命令被拒绝时撤销乐观更新
func (c *Client) restore(prev View) {
	c.update(func(v *View) {
		autoplay := v.Autoplay
		*v = prev
		v.Autoplay = autoplay
	})
}

func (c *Client) titleOf(url string) string {
	if c.playlist == nil {
		return ""
	}
	for _, s := range c.playlist.Songs() {
		if s.URL == url {
			return s.Title
		}
	}
	return ""
}
